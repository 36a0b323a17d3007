package models

// ClassifyRequest is the body of POST /v1/classify
type ClassifyRequest struct {
	Text string `json:"text"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Time         string `json:"time"`
	Engine       string `json:"engine"`
	PreferredOCR Mode   `json:"preferred_mode"`
}
