package models

import "encoding/json"

// ImageSummary is the lightweight result of analyzing one image
type ImageSummary struct {
	JSON   string  `json:"json"`
	Report string  `json:"report"`
	Score  float64 `json:"score"`
}

// BatchEntry is one position in a batch result list: either a summary or a failure
type BatchEntry struct {
	JSON   string   `json:"json,omitempty"`
	Report string   `json:"report,omitempty"`
	Score  *float64 `json:"score,omitempty"`
	File   string   `json:"file,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Failed reports whether the entry records a per-image failure
func (e BatchEntry) Failed() bool {
	return e.Error != ""
}

// EntryFromSummary converts a successful summary into a batch entry
func EntryFromSummary(s *ImageSummary) BatchEntry {
	score := s.Score
	return BatchEntry{JSON: s.JSON, Report: s.Report, Score: &score}
}

// EntryFromError records a failed image by file name
func EntryFromError(file string, err error) BatchEntry {
	return BatchEntry{File: file, Error: err.Error()}
}

// BatchReport is the SUMMARY_<timestamp>.json artifact
type BatchReport struct {
	RunID     string       `json:"run_id"`
	Folder    string       `json:"folder"`
	Count     int          `json:"count"`
	Results   []BatchEntry `json:"results"`
	Timestamp string       `json:"timestamp"`
	Summary   string       `json:"summary,omitempty"`
}

// Accuracy compares recognized text against a known reference
type Accuracy struct {
	WER float64 `json:"word_error_rate"`
	CER float64 `json:"character_error_rate"`
}

// ImprovementEntry is one image in the keyword-assisted improvement report
type ImprovementEntry struct {
	File            string    `json:"file"`
	Mode            Mode      `json:"mode,omitempty"`
	ProcessingTimeS float64   `json:"processing_time_s,omitempty"`
	KeywordCount    int       `json:"keyword_count"`
	KeywordsFound   []string  `json:"keywords_found,omitempty"`
	TextPreview     string    `json:"text_preview,omitempty"`
	Accuracy        *Accuracy `json:"accuracy,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// MarshalJSON writes a failed entry as {file, error} only
func (e ImprovementEntry) MarshalJSON() ([]byte, error) {
	if e.Error != "" {
		return json.Marshal(struct {
			File  string `json:"file"`
			Error string `json:"error"`
		}{e.File, e.Error})
	}
	type entry ImprovementEntry
	return json.Marshal(entry(e))
}

// ImprovementReport is the ocr_improvement_report.json artifact
type ImprovementReport struct {
	TestDate            string             `json:"test_date"`
	EngineVersion       string             `json:"ocr_engine_version"`
	TotalImages         int                `json:"total_images"`
	OKImages            int                `json:"ok_images"`
	AvgKeywordsPerImage float64            `json:"avg_keywords_per_image"`
	AvgProcessingTimeS  float64            `json:"avg_processing_time_s"`
	DetailedResults     []ImprovementEntry `json:"detailed_results"`
	Path                string             `json:"-"`
}

// DemoResult describes a demo smoke-test run
type DemoResult struct {
	ImagePath string        `json:"image"`
	Summary   *ImageSummary `json:"summary"`
	Accuracy  Accuracy      `json:"accuracy"`
}

// ExtractSummary describes one OCR-only run
type ExtractSummary struct {
	Image           string  `json:"image"`
	TextFile        string  `json:"text_file,omitempty"`
	TextLen         int     `json:"text_len"`
	Mode            Mode    `json:"mode,omitempty"`
	ProcessingTimeS float64 `json:"processing_time_s,omitempty"`
	Error           string  `json:"error,omitempty"`
}
