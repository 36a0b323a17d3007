// Package keywords finds security vocabulary in extracted text.
package keywords

import "strings"

// DefaultKeywords is the security vocabulary used for keyword-assisted extraction
var DefaultKeywords = []string{
	"firewall",
	"antivirus",
	"windows update",
	"update",
	"bitlocker",
	"uac",
	"user account control",
	"backup",
	"password",
	"encryption",
	"defender",
	"security",
	"protection",
	"enabled",
	"disabled",
	"active",
	"automatic",
	"manual",
	"risk",
}

// Defaults returns a copy of DefaultKeywords
func Defaults() []string {
	return append([]string(nil), DefaultKeywords...)
}

// Scan returns the members of set that occur in text, compared case-insensitively
// as substrings. The result follows the order of set and has no duplicates.
func Scan(text string, set []string) []string {
	lower := strings.ToLower(text)
	found := make([]string, 0, len(set))
	seen := make(map[string]bool, len(set))
	for _, kw := range set {
		k := strings.ToLower(kw)
		if k == "" || seen[k] {
			continue
		}
		if strings.Contains(lower, k) {
			found = append(found, kw)
			seen[k] = true
		}
	}
	return found
}
