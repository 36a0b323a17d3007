// Package artifact renders pipeline results into the files written per image and per run.
package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alexandrurinzescu-afk/vaultguard-revolution/pkg/models"
)

// Output sub-directories and fixed file names
const (
	TextDir               = "ocr_results"
	ResultsDir            = "security_results"
	ImprovementReportName = "ocr_improvement_report.json"

	// ExcerptLength is the number of characters kept in ocr_text_excerpt
	ExcerptLength = 400
	// PreviewLength is the number of characters kept in improvement text previews
	PreviewLength = 300
)

var rule = strings.Repeat("=", 60)

// BaseName strips directory and extension from an image path
func BaseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// TextKey is the storage key of <base>_extracted.txt
func TextKey(imagePath string) string {
	return filepath.ToSlash(filepath.Join(TextDir, BaseName(imagePath)+"_extracted.txt"))
}

// AnalysisKey is the storage key of <base>_analysis.json
func AnalysisKey(imagePath string) string {
	return filepath.ToSlash(filepath.Join(ResultsDir, BaseName(imagePath)+"_analysis.json"))
}

// ReportKey is the storage key of <base>_report.txt
func ReportKey(imagePath string) string {
	return filepath.ToSlash(filepath.Join(ResultsDir, BaseName(imagePath)+"_report.txt"))
}

// SummaryKey is the storage key of the batch summary written at t
func SummaryKey(t time.Time) string {
	return filepath.ToSlash(filepath.Join(ResultsDir, "SUMMARY_"+t.Format(models.FileStampLayout)+".json"))
}

// Truncate keeps the first n characters of s
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ExtractText renders the <base>_extracted.txt artifact
func ExtractText(imagePath string, res *models.ExtractionResult) []byte {
	var b bytes.Buffer
	b.WriteString("# VaultGuard OCR Extract\n")
	fmt.Fprintf(&b, "# Image: %s\n", filepath.Base(imagePath))
	fmt.Fprintf(&b, "# Date: %s\n", models.FormatTimestamp(res.Timestamp))
	fmt.Fprintf(&b, "# Lang: %s\n", res.Language)
	fmt.Fprintf(&b, "# ProcessingTimeS: %.3f\n", res.Elapsed.Seconds())
	b.WriteString(rule + "\n\n")
	b.WriteString(res.Text + "\n")
	return b.Bytes()
}

// Report renders the human-readable <base>_report.txt artifact
func Report(p *models.AnalysisPayload, order []string) []byte {
	a := p.SecurityAnalysis
	lines := []string{
		rule,
		"VAULTGUARD SECURITY ANALYSIS REPORT (MVP)",
		rule,
		"Image: " + p.Image,
		"Timestamp: " + p.Timestamp,
	}

	if a == nil || a.SecurityAssessment == nil {
		reason := models.EmptyTextMarker
		if a != nil && a.Error != "" {
			reason = a.Error
		}
		lines = append(lines, "Security score: n/a ("+reason+")", "", "SETTINGS:", "", "RISKS:", "", "RECOMMENDATIONS:", "")
		return []byte(strings.Join(lines, "\n") + "\n")
	}

	lines = append(lines, "Security score: "+FormatScore(a.Score)+"%", "", "SETTINGS:")
	for _, name := range order {
		s, ok := a.Settings[name]
		if !ok || !s.Detected {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s (conf %d%%)", name, s.Status, s.Confidence))
	}
	lines = append(lines, "", "RISKS:")
	for _, r := range a.Risks {
		lines = append(lines, "- "+r)
	}
	lines = append(lines, "", "RECOMMENDATIONS:")
	for _, r := range a.Recommendations {
		lines = append(lines, "- "+r)
	}
	lines = append(lines, "")
	return []byte(strings.Join(lines, "\n") + "\n")
}

// FormatScore prints a score with one decimal, e.g. 71.4 or 100.0
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', 1, 64)
}

// JSON encodes v with two-space indentation and without HTML escaping
func JSON(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
