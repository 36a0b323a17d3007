// Package risk turns classified settings into a score, recommendations and risk flags.
package risk

import (
	"math"
	"time"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/classifier"
	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// Policy holds the fixed messages and thresholds of the deriver
type Policy struct {
	// Priority lists setting names in recommendation order
	Priority        []string
	Recommendations map[string]string
	AllClear        string

	// HighThreshold is the insecure count from which the aggregate risk is HIGH
	HighThreshold int
	HighRisk      string
	MediumRisk    string
	// SettingRisks are emitted for insecure settings, in RiskOrder
	SettingRisks map[string]string
	RiskOrder    []string
}

// DefaultPolicy returns the built-in policy for the default rule table
func DefaultPolicy() Policy {
	return Policy{
		Priority: []string{"firewall", "antivirus", "windows_update", "password_policy", "backup", "bitlocker", "uac"},
		Recommendations: map[string]string{
			"firewall":        "Turn on Windows Firewall.",
			"antivirus":       "Turn on and update your antivirus (Windows Defender).",
			"windows_update":  "Set Windows Update to automatic.",
			"password_policy": "Enforce a strong password policy (complexity requirements).",
			"backup":          "Configure automatic backups (File History or Windows Backup).",
			"bitlocker":       "Turn on disk encryption (BitLocker or Device encryption).",
			"uac":             "Keep User Account Control on (Always notify recommended).",
		},
		AllClear:      "Core security settings look OK.",
		HighThreshold: 3,
		HighRisk:      "RISK HIGH: multiple critical settings are disabled.",
		MediumRisk:    "RISK MEDIUM: some critical settings are disabled.",
		SettingRisks: map[string]string{
			"antivirus": "VIRUS RISK: antivirus is disabled or outdated.",
			"firewall":  "NETWORK RISK: firewall is disabled.",
		},
		RiskOrder: []string{"antivirus", "firewall"},
	}
}

// PolicyFor adapts the default policy to a rule set: priority follows rule order and
// a rule's own recommendation wins over the built-in one.
func PolicyFor(rs *classifier.RuleSet) Policy {
	p := DefaultPolicy()
	if rs == nil {
		return p
	}
	recs := make(map[string]string, len(p.Recommendations))
	for k, v := range p.Recommendations {
		recs[k] = v
	}
	p.Priority = rs.Names()
	for _, r := range rs.Rules() {
		if r.Recommendation != "" {
			recs[r.Name] = r.Recommendation
		} else if _, ok := recs[r.Name]; !ok {
			recs[r.Name] = "Review the " + r.Name + " setting."
		}
	}
	p.Recommendations = recs
	return p
}

// Deriver aggregates settings into a SecurityAssessment
type Deriver interface {
	Derive(settings map[string]models.SettingAssessment) models.SecurityAssessment
}

type deriver struct {
	policy Policy
	now    func() time.Time
}

// NewDeriver creates a deriver with the given policy
func NewDeriver(policy Policy) Deriver {
	return &deriver{policy: policy, now: time.Now}
}

func (d *deriver) Derive(settings map[string]models.SettingAssessment) models.SecurityAssessment {
	return models.SecurityAssessment{
		Timestamp:       models.FormatTimestamp(d.now()),
		Settings:        settings,
		Score:           Score(settings),
		Recommendations: d.recommendations(settings),
		Risks:           d.risks(settings),
	}
}

// Score is the percentage of secure settings, rounded to one decimal
func Score(settings map[string]models.SettingAssessment) float64 {
	if len(settings) == 0 {
		return 0
	}
	secure := 0
	for _, s := range settings {
		if s.Status == models.StatusSecure {
			secure++
		}
	}
	return math.Round(1000*float64(secure)/float64(len(settings))) / 10
}

func (d *deriver) insecure(settings map[string]models.SettingAssessment, name string) bool {
	s, ok := settings[name]
	return ok && s.Status == models.StatusInsecure
}

func (d *deriver) recommendations(settings map[string]models.SettingAssessment) []string {
	recs := []string{}
	for _, name := range d.policy.Priority {
		if d.insecure(settings, name) {
			recs = append(recs, d.policy.Recommendations[name])
		}
	}
	if len(recs) == 0 {
		recs = append(recs, d.policy.AllClear)
	}
	return recs
}

func (d *deriver) risks(settings map[string]models.SettingAssessment) []string {
	risks := []string{}
	count := 0
	for _, s := range settings {
		if s.Status == models.StatusInsecure {
			count++
		}
	}
	switch {
	case count >= d.policy.HighThreshold:
		risks = append(risks, d.policy.HighRisk)
	case count > 0:
		risks = append(risks, d.policy.MediumRisk)
	}
	for _, name := range d.policy.RiskOrder {
		if msg, ok := d.policy.SettingRisks[name]; ok && d.insecure(settings, name) {
			risks = append(risks, msg)
		}
	}
	return risks
}
