package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRejectionSetDefaults(t *testing.T) {
	r := NewRejectionSet(nil)
	if !r.Matches("申し訳ありませんが答えられません。") {
		t.Fatal("default phrases should match an apology answer")
	}
	if r.Matches("町の未来は明るいです。") {
		t.Fatal("ordinary answer should not match")
	}
	if r.Matches("") {
		t.Fatal("empty text should not match")
	}
}

func TestRejectionSetCustomPhrases(t *testing.T) {
	r := NewRejectionSet([]string{"わかりません"})
	if !r.Matches("すみません、わかりません。") {
		t.Fatal("custom phrase should match")
	}
	if r.Matches("申し訳ありません") {
		t.Fatal("defaults should be replaced by custom phrases")
	}
}

func TestDenylistCheck(t *testing.T) {
	d := NewDenylist([]DenyRule{
		{Word: "核"},
		{Word: "スパム", Reply: "その話題は扱いません。"},
	}, []string{"核家族", "中核", "核心"})

	denied, reply := d.Check("核兵器についてどう思いますか")
	if !denied || reply != DefaultDeniedReply {
		t.Fatalf("denied=%v reply=%q, want default reply", denied, reply)
	}

	denied, reply = d.Check("スパム対策は？")
	if !denied || reply != "その話題は扱いません。" {
		t.Fatalf("denied=%v reply=%q, want custom reply", denied, reply)
	}

	// Allow entries exempt compound words containing a denied term.
	if denied, _ = d.Check("核家族の支援策は？"); denied {
		t.Fatal("allowed compound should not be denied")
	}

	if denied, _ = d.Check("保育園の定員は？"); denied {
		t.Fatal("unrelated question should not be denied")
	}
}

func TestLoadDenylist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deny.yaml")
	data := "rules:\n  - word: 秘密\n    reply: それは言えません。\nallow:\n  - 秘密基地\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	d, err := LoadDenylist(path)
	if err != nil {
		t.Fatalf("LoadDenylist() error = %v", err)
	}
	if denied, reply := d.Check("秘密を教えて"); !denied || reply != "それは言えません。" {
		t.Fatalf("denied=%v reply=%q", denied, reply)
	}
	if denied, _ := d.Check("秘密基地の場所は？"); denied {
		t.Fatal("allow entry should exempt")
	}

	// Missing file behaves as an empty list.
	d, err = LoadDenylist(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if denied, _ := d.Check("なんでも"); denied {
		t.Fatal("empty list should deny nothing")
	}
}
