package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
)

// Mode selects the preprocessing/extraction configuration bundle
type Mode string

const (
	// ModeDefault is the generic document profile
	ModeDefault Mode = "default"
	// ModeWindowsSecurity is tuned for Windows Security UI screenshots
	ModeWindowsSecurity Mode = "windows_security"
)

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	return m == ModeDefault || m == ModeWindowsSecurity
}

// Status is the classification outcome for a single setting
type Status string

const (
	StatusSecure   Status = "secure"
	StatusInsecure Status = "insecure"
	StatusNeutral  Status = "neutral"
	StatusUnknown  Status = "unknown"
)

// ExtractionResult is the immutable output of one OCR run
type ExtractionResult struct {
	Text      string
	Language  string
	Mode      Mode
	Elapsed   time.Duration
	Timestamp time.Time
}

type extractionResultJSON struct {
	Text            string   `json:"text"`
	Lang            string   `json:"lang"`
	ProcessingTimeS float64  `json:"processing_time_s"`
	ConfidenceEst   *float64 `json:"confidence_est"`
	Timestamp       string   `json:"timestamp"`
	Mode            Mode     `json:"mode"`
}

// MarshalJSON keeps the artifact field names stable independent of the Go field names
func (r ExtractionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(extractionResultJSON{
		Text:            r.Text,
		Lang:            r.Language,
		ProcessingTimeS: r.Elapsed.Seconds(),
		Timestamp:       FormatTimestamp(r.Timestamp),
		Mode:            r.Mode,
	})
}

// UnmarshalJSON is the inverse of MarshalJSON
func (r *ExtractionResult) UnmarshalJSON(data []byte) error {
	var raw extractionResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, _ := time.Parse(TimestampLayout, raw.Timestamp)
	*r = ExtractionResult{
		Text:      raw.Text,
		Language:  raw.Lang,
		Mode:      raw.Mode,
		Elapsed:   time.Duration(raw.ProcessingTimeS * float64(time.Second)),
		Timestamp: ts,
	}
	return nil
}

// SettingAssessment is the classification of one tracked setting
type SettingAssessment struct {
	Name       string   `json:"-"`
	Detected   bool     `json:"detected"`
	Status     Status   `json:"status"`
	Confidence int      `json:"confidence"`
	Evidence   []string `json:"evidence"`
}

// SecurityAssessment aggregates all settings into a score, recommendations and risks
type SecurityAssessment struct {
	Timestamp       string                       `json:"timestamp"`
	Settings        map[string]SettingAssessment `json:"settings"`
	Score           float64                      `json:"security_score"`
	Recommendations []string                     `json:"recommendations"`
	Risks           []string                     `json:"risks"`
}

// EmptyTextMarker is recorded instead of an assessment when there was no text to classify
const EmptyTextMarker = "empty_text"

// SecurityAnalysis is the security_analysis object of the analysis artifact.
// Exactly one of Error or SecurityAssessment is set.
type SecurityAnalysis struct {
	Error string `json:"error,omitempty"`
	*SecurityAssessment
	SourceImage string `json:"source_image"`
	OCRTextFile string `json:"ocr_text_file"`
	OCRTextLen  int    `json:"ocr_text_len"`
}

// ScoreOrZero returns the security score, or 0 when classification was skipped
func (a *SecurityAnalysis) ScoreOrZero() float64 {
	if a == nil || a.SecurityAssessment == nil {
		return 0
	}
	return a.Score
}

// AnalysisPayload is the <base>_analysis.json artifact
type AnalysisPayload struct {
	Timestamp        string            `json:"timestamp"`
	Image            string            `json:"image"`
	OCR              ExtractionResult  `json:"ocr"`
	SecurityAnalysis *SecurityAnalysis `json:"security_analysis"`
	OCRTextExcerpt   string            `json:"ocr_text_excerpt"`
}

// TimestampLayout is the second-resolution ISO layout used in artifacts
const TimestampLayout = "2006-01-02T15:04:05"

// FileStampLayout is used for timestamps embedded in artifact names
const FileStampLayout = "20060102_150405"

// FormatTimestamp renders t in TimestampLayout
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseMode converts a user-supplied string into a Mode. Unknown values are rejected
// rather than treated as ModeDefault.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return ModeDefault, nil
	}
	if !m.Valid() {
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown mode %q", s), nil)
	}
	return m, nil
}
