// Package classifier decides, per tracked security setting, whether extracted text
// shows it enabled, disabled or not at all.
package classifier

import (
	"regexp"
	"strings"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

const (
	maxEvidenceRunes = 200

	baseConfidence     = 35
	perEvidenceBonus   = 20
	perKeywordBonus    = 5
	maxKeywordBonus    = 20
	maxConfidenceValue = 100
)

// ErrEmptyText is returned for empty or whitespace-only input
var ErrEmptyText = apperrors.NewEmptyTextError()

// Classifier maps text to one assessment per rule
type Classifier interface {
	Classify(text string) (map[string]models.SettingAssessment, error)
	Rules() *RuleSet
}

type classifier struct {
	rules *RuleSet
}

// New creates a classifier over rules. A nil rule set selects the default table.
func New(rules *RuleSet) Classifier {
	if rules == nil {
		rules = MustDefault()
	}
	return &classifier{rules: rules}
}

func (c *classifier) Rules() *RuleSet {
	return c.rules
}

// Classify evaluates every rule against text. The result has exactly one entry per
// rule; the same input always yields the same output.
func (c *classifier) Classify(text string) (map[string]models.SettingAssessment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	lower := strings.ToLower(text)

	out := make(map[string]models.SettingAssessment, c.rules.Len())
	for i, rule := range c.rules.rules {
		out[rule.Name] = assess(rule, c.rules.compiled[i], lower)
	}
	return out, nil
}

func assess(rule Rule, patterns []*regexp.Regexp, lower string) models.SettingAssessment {
	var evidence []string
	seen := make(map[string]bool)
	for _, re := range patterns {
		for _, m := range re.FindAllString(lower, -1) {
			snippet := truncateRunes(strings.TrimSpace(m), maxEvidenceRunes)
			if seen[snippet] {
				continue
			}
			seen[snippet] = true
			evidence = append(evidence, snippet)
		}
	}

	if len(evidence) == 0 {
		return models.SettingAssessment{
			Name:     rule.Name,
			Status:   models.StatusUnknown,
			Evidence: []string{},
		}
	}

	joined := strings.Join(evidence, " ")
	pos := countAll(joined, rule.PositiveKeywords)
	neg := countAll(joined, rule.NegativeKeywords)

	status := models.StatusNeutral
	switch {
	case pos > neg:
		status = models.StatusSecure
	case neg > pos:
		status = models.StatusInsecure
	}

	return models.SettingAssessment{
		Name:       rule.Name,
		Detected:   true,
		Status:     status,
		Confidence: confidence(len(evidence), pos+neg),
		Evidence:   evidence,
	}
}

// confidence is 35 + 20 per evidence snippet + 5 per keyword hit (at most 20), capped at 100
func confidence(evidence, hits int) int {
	return min(maxConfidenceValue, baseConfidence+perEvidenceBonus*evidence+min(maxKeywordBonus, perKeywordBonus*hits))
}

func countAll(s string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		n += strings.Count(s, kw)
	}
	return n
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
