package validation

import (
	"net/url"
	"slices"
	"strings"

	apperrors "github.com/alexandrurinzescu-afk/vaultguard-revolution/internal/errors"
)

// URLValidator decides which remote screenshots the API may download
type URLValidator struct {
	allowedSchemes []string
	allowedHosts   []string
}

// NewURLValidator accepts http and https URLs. A non-empty allowedHosts restricts the
// host; entries are matched case-insensitively without the port.
func NewURLValidator(allowedHosts ...string) *URLValidator {
	lowered := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			lowered = append(lowered, h)
		}
	}
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
		allowedHosts:   lowered,
	}
}

// ValidateImageURL returns a validation error when imageURL may not be fetched
func (v *URLValidator) ValidateImageURL(imageURL string) error {
	if strings.TrimSpace(imageURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return apperrors.NewValidationError("invalid URL format", err)
	}
	if !slices.Contains(v.allowedSchemes, strings.ToLower(parsedURL.Scheme)) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}
	if parsedURL.Hostname() == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}
	if !v.isHostAllowed(parsedURL.Hostname()) {
		return apperrors.NewValidationError("URL host not allowed", nil)
	}
	return nil
}

// isHostAllowed is true when no host restriction is configured
func (v *URLValidator) isHostAllowed(host string) bool {
	if len(v.allowedHosts) == 0 {
		return true
	}
	return slices.Contains(v.allowedHosts, strings.ToLower(host))
}
