package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultDeniedReply is returned when a deny-list rule matches but carries
// no custom reply.
const DefaultDeniedReply = "その質問には答えられません。私はまだ学習中であるため、答えられないこともあります。申し訳ありません。"

// DenyRule blocks questions containing Word and answers with Reply instead
// of invoking the generator.
type DenyRule struct {
	Word  string `yaml:"word"`
	Reply string `yaml:"reply,omitempty"`
}

// Denylist screens incoming questions before generation. Allow entries are
// substrings that exempt a question even when a deny word matches (e.g.
// compound words that merely contain a denied term).
type Denylist struct {
	rules []DenyRule
	allow []string
}

type denylistFile struct {
	Rules []DenyRule `yaml:"rules"`
	Allow []string   `yaml:"allow"`
}

// NewDenylist builds a screen from explicit rules.
func NewDenylist(rules []DenyRule, allow []string) *Denylist {
	return &Denylist{rules: rules, allow: allow}
}

// LoadDenylist reads a YAML deny-list file. A missing path yields an empty
// (permit-everything) list rather than an error.
func LoadDenylist(path string) (*Denylist, error) {
	if strings.TrimSpace(path) == "" {
		return &Denylist{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Denylist{}, nil
		}
		return nil, fmt.Errorf("read denylist: %w", err)
	}
	var f denylistFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse denylist: %w", err)
	}
	return &Denylist{rules: f.Rules, allow: f.Allow}, nil
}

// Check reports whether the question is denied and, if so, the canned reply
// to answer with.
func (d *Denylist) Check(question string) (denied bool, reply string) {
	lower := strings.ToLower(question)
	for _, a := range d.allow {
		if a != "" && strings.Contains(question, a) {
			return false, ""
		}
	}
	for _, r := range d.rules {
		if r.Word == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(r.Word)) {
			if strings.TrimSpace(r.Reply) == "" {
				return true, DefaultDeniedReply
			}
			return true, r.Reply
		}
	}
	return false, ""
}
