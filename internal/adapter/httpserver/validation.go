package httpserver

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func invalid(field, code, message string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

var validQueryRe = regexp.MustCompile(`^[a-zA-Z0-9\s.&'_-]+$`)

// ValidateSearchQuery validates a symbol/company search query.
func ValidateSearchQuery(query string) ValidationResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return invalid("q", "REQUIRED", "Search query is required")
	}
	if len(query) > 100 {
		return invalid("q", "TOO_LONG", "Search query is too long (max 100 characters)")
	}
	if !validQueryRe.MatchString(query) {
		return invalid("q", "INVALID_FORMAT", "Search query contains invalid characters")
	}
	return ValidationResult{Valid: true}
}

// ValidateRange validates a historical data range token.
func ValidateRange(rng string) ValidationResult {
	if rng == "" {
		return ValidationResult{Valid: true}
	}
	switch rng {
	case "1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "max":
		return ValidationResult{Valid: true}
	}
	return invalid("range", "INVALID_VALUE", "Range must be one of: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, max")
}

// ValidateLimit validates an optional limit parameter within [1, max].
func ValidateLimit(limit string, max int) (int, ValidationResult) {
	if limit == "" {
		return 0, ValidationResult{Valid: true}
	}
	n, err := strconv.Atoi(limit)
	if err != nil || n < 1 || n > max {
		return 0, invalid("limit", "INVALID_FORMAT", "Limit must be between 1 and "+strconv.Itoa(max))
	}
	return n, ValidationResult{Valid: true}
}

// ValidateDate validates an ISO date parameter.
func ValidateDate(field, value string) ValidationResult {
	if value == "" {
		return ValidationResult{Valid: true}
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return invalid(field, "INVALID_FORMAT", "Date must be formatted YYYY-MM-DD")
	}
	return ValidationResult{Valid: true}
}

// SanitizeString sanitizes a free-text string input.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
