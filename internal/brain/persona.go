package brain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// QA is one example exchange shown to the model to anchor tone and length.
type QA struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Persona describes the character answering questions.
type Persona struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Style       []string `yaml:"style"`
	Knowledge   []string `yaml:"knowledge"`
	Examples    []QA     `yaml:"examples"`
}

// DefaultPersona is used when no persona file is configured.
var DefaultPersona = Persona{
	Name:        "町議会議員アバター",
	Description: "町の議会議員として、住民や視聴者の質問に丁寧に答えるアバターです。",
	Style: []string{
		"常に丁寧語で話す",
		"回答は3文以内に収める",
		"わからないことは正直に「わかりません」と答える",
	},
}

// LoadPersona reads a persona YAML file. A missing or empty path falls
// back to DefaultPersona.
func LoadPersona(path string) (Persona, error) {
	if path == "" {
		return DefaultPersona, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPersona, nil
		}
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona file: %w", err)
	}
	if p.Name == "" {
		p.Name = DefaultPersona.Name
	}
	return p, nil
}

// BuildPrompt assembles the generation prompt: persona, style rules,
// retrieved context, few-shot examples, then the question and the required
// JSON output shape.
func BuildPrompt(p Persona, question, author string, passages []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "あなたは「%s」です。%s\n\n", p.Name, p.Description)

	if len(p.Style) > 0 {
		b.WriteString("回答のルール:\n")
		for _, s := range p.Style {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	if len(p.Knowledge) > 0 || len(passages) > 0 {
		b.WriteString("参考情報:\n")
		for _, k := range p.Knowledge {
			fmt.Fprintf(&b, "- %s\n", k)
		}
		for _, pz := range passages {
			fmt.Fprintf(&b, "- %s\n", pz)
		}
		b.WriteString("\n")
	}

	if len(p.Examples) > 0 {
		b.WriteString("回答例:\n")
		for _, ex := range p.Examples {
			fmt.Fprintf(&b, "質問: %s\n回答: %s\n", ex.Question, ex.Answer)
		}
		b.WriteString("\n")
	}

	if author != "" {
		fmt.Fprintf(&b, "%sさんからの質問: %s\n\n", author, question)
	} else {
		fmt.Fprintf(&b, "質問: %s\n\n", question)
	}

	b.WriteString(`次のJSON形式のみで回答してください:
{"response": "回答文", "primary_emotion": "Neutral | Joy | Angry | Sorrow | Fun"}`)
	return b.String()
}
