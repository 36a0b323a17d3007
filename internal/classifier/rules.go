package classifier

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
)

// Rule describes how one security setting is recognized in extracted text
type Rule struct {
	Name             string   `yaml:"name"`
	Patterns         []string `yaml:"patterns"`
	PositiveKeywords []string `yaml:"positive"`
	NegativeKeywords []string `yaml:"negative"`
	// Recommendation is emitted when the setting is insecure
	Recommendation string `yaml:"recommendation,omitempty"`
}

// RuleSet is an ordered, compiled, read-only set of rules
type RuleSet struct {
	rules    []Rule
	compiled [][]*regexp.Regexp
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleSet validates and compiles rules. Patterns are matched case-insensitively
// and with "." matching newlines.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	if len(rules) == 0 {
		return nil, apperrors.NewValidationError("rule set is empty", nil)
	}
	rs := &RuleSet{
		rules:    make([]Rule, len(rules)),
		compiled: make([][]*regexp.Regexp, len(rules)),
	}
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, apperrors.NewValidationError(fmt.Sprintf("rule %d has no name", i), nil)
		}
		if seen[name] {
			return nil, apperrors.NewValidationError(fmt.Sprintf("duplicate rule %q", name), nil)
		}
		seen[name] = true
		if len(r.Patterns) == 0 {
			return nil, apperrors.NewValidationError(fmt.Sprintf("rule %q has no patterns", name), nil)
		}

		for _, p := range r.Patterns {
			re, err := regexp.Compile("(?is)" + p)
			if err != nil {
				return nil, apperrors.NewValidationError(fmt.Sprintf("rule %q: bad pattern %q", name, p), err)
			}
			rs.compiled[i] = append(rs.compiled[i], re)
		}
		r.Name = name
		r.Patterns = append([]string(nil), r.Patterns...)
		r.PositiveKeywords = lowerAll(r.PositiveKeywords)
		r.NegativeKeywords = lowerAll(r.NegativeKeywords)
		rs.rules[i] = r
	}
	return rs, nil
}

// LoadRules reads a YAML rule file of the form {rules: [{name, patterns, positive, negative}]}
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("read rules file %s", path), err)
	}
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("parse rules file %s", path), err)
	}
	return NewRuleSet(f.Rules)
}

// MustDefault compiles DefaultRules and panics on failure
func MustDefault() *RuleSet {
	rs, err := NewRuleSet(DefaultRules())
	if err != nil {
		panic(err)
	}
	return rs
}

// Rules returns a copy of the rules in evaluation order
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Names returns the rule names in evaluation order
func (rs *RuleSet) Names() []string {
	names := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		names[i] = r.Name
	}
	return names
}

// Len returns the number of rules
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// MarshalYAML renders the rule set in the LoadRules format
func (rs *RuleSet) MarshalYAML() (interface{}, error) {
	return ruleFile{Rules: rs.Rules()}, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Spans between a subject and its state stay within one sentence or line, so a
// state word belonging to the next setting is never attributed to this one.
const span = `[^.\n]*?`

func alt(words []string) string {
	return "(" + strings.Join(words, "|") + ")"
}

// subjectState builds the "subject: state" and "subject ... state" patterns for
// both polarities.
func subjectState(direct, loose string, pos, neg []string) []string {
	return []string{
		direct + `\s*[:\-]?\s*` + alt(pos),
		direct + `\s*[:\-]?\s*` + alt(neg),
		loose + span + alt(pos),
		loose + span + alt(neg),
	}
}

// DefaultRules returns a fresh copy of the built-in rule table. Keywords cover the
// English and Romanian Windows UI.
func DefaultRules() []Rule {
	firewallPos := []string{"on", "enabled", "running", "active", "activ", "activat", "pornit"}
	firewallNeg := []string{"off", "disabled", "stopped", "oprit", "dezactivat", "inactiv"}

	avPos := []string{"on", "enabled", "running", "active", "activ", "activat", "actualizat", "up to date"}
	avNeg := []string{"off", "disabled", "stopped", "oprit", "dezactivat", "outdated"}

	updPos := []string{"on", "enabled", "automatic", "activ", "activat", "automat", "pornit"}
	updNeg := []string{"off", "disabled", "manual", "oprit", "dezactivat"}

	backupPos := []string{"on", "enabled", "automatic", "activ", "activat", "automat"}
	backupNeg := []string{"off", "disabled", "none", "oprit", "dezactivat", "nu"}

	blPos := []string{"on", "enabled", "encrypted", "activ", "activat"}
	blNeg := []string{"off", "disabled", "unencrypted", "oprit", "dezactivat"}

	uacPos := []string{"on", "enabled", "always notify", "activ", "activat", "notificare"}
	uacNeg := []string{"off", "disabled", "never notify", "oprit", "dezactivat"}

	backupPatterns := []string{
		`(backup)\s*[:\-]?\s*` + alt(backupPos),
		`(backup)\s*[:\-]?\s*` + alt(backupNeg),
		// common OCR misreads of "backup"
		`backu[pb]\s*` + alt(backupPos),
		`backu[pb]\s*` + alt(backupNeg),
		`[bg]ackup\s*` + alt(backupPos),
		`[bg]ackup\s*` + alt(backupNeg),
		`[bg]ackup` + span + alt(backupPos),
		`[bg]ackup` + span + alt(backupNeg),
		`(backup|file history|windows backup)` + span + alt(backupPos),
		`(backup|file history|windows backup)` + span + alt(backupNeg),
	}

	return []Rule{
		{
			Name: "firewall",
			Patterns: subjectState(`firewall`, `(windows defender firewall|firewall)`,
				firewallPos, firewallNeg),
			PositiveKeywords: firewallPos,
			NegativeKeywords: firewallNeg,
		},
		{
			Name: "antivirus",
			Patterns: subjectState(`(antivirus|defender)`,
				`(windows defender|defender antivirus|antivirus|virus`+span+`protection)`,
				avPos, avNeg),
			PositiveKeywords: avPos,
			NegativeKeywords: avNeg,
		},
		{
			Name:             "windows_update",
			Patterns:         subjectState(`(windows update|update)`, `(windows update|updates?)`, updPos, updNeg),
			PositiveKeywords: updPos,
			NegativeKeywords: updNeg,
		},
		{
			Name: "password_policy",
			Patterns: []string{
				`(password|parol[ăa])` + span + `(strong|complex|puternic[ăa]|enforced)`,
				`(password|parol[ăa])` + span + `(weak|simple|slab[ăa]|simpl[ăa])`,
			},
			PositiveKeywords: []string{"strong", "complex", "puternica", "puternică", "puternic", "enforced"},
			NegativeKeywords: []string{"weak", "simple", "slaba", "slabă", "simpla", "simplă", "simplu"},
		},
		{
			Name:             "backup",
			Patterns:         backupPatterns,
			PositiveKeywords: backupPos,
			NegativeKeywords: backupNeg,
		},
		{
			Name: "bitlocker",
			Patterns: subjectState(`(bitlocker|encryption)`, `(bitlocker|drive encryption|device encryption)`,
				blPos, blNeg),
			PositiveKeywords: blPos,
			NegativeKeywords: blNeg,
		},
		{
			Name:             "uac",
			Patterns:         subjectState(`(uac)`, `(user account control|uac)`, uacPos, uacNeg),
			PositiveKeywords: uacPos,
			NegativeKeywords: uacNeg,
		},
	}
}
