package textnorm

import "testing"

func TestNormalizeStripsPunctuationAndWhitespace(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"与那国の未来は？", "与那国の未来は"},
		{"与那国の未来は?", "与那国の未来は"},
		{"　与那国の 未来は…！", "与那国の未来は"},
		{"「税制について」教えてください。", "税制について教えてください"},
		{"Hello, world!", "Helloworld"},
		{"", ""},
		{"   　\t\n", ""},
		{"。。。", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"与那国馬活用プロジェクトの具体的な進捗状況はどうなっていますか？",
		"Taxes?! Really...",
		"『未来』について、教えて！",
		"",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestNormalizeEquivalentRenderings(t *testing.T) {
	a := Normalize("与那国の未来は？")
	b := Normalize("与那国の未来は")
	c := Normalize("与那国の未来は！？")
	if a == "" || a != b || b != c {
		t.Fatalf("equivalent renderings diverged: %q %q %q", a, b, c)
	}
}
