package synth

import "strings"

// nameReadings maps proper nouns the TTS voice mispronounces to kana
// spellings. Applied to the spoken text only; the displayed answer keeps
// the original writing.
var nameReadings = map[string]string{
	"与那国": "よなぐに",
	"祖納":  "そない",
	"久部良": "くぶら",
	"比川":  "ひがわ",
	"東崎":  "あがりざき",
	"西崎":  "いりざき",
	"長命草": "ちょうめいぐさ",
}

// ApplyReadings rewrites known hard-to-read names into kana before
// synthesis.
func ApplyReadings(text string) string {
	for written, reading := range nameReadings {
		text = strings.ReplaceAll(text, written, reading)
	}
	return text
}
