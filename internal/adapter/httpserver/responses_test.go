package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/stock-intel/internal/domain"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestWriteError_SentinelMapping(t *testing.T) {
	cases := []struct {
		err       error
		status    int
		code      string
		retryable bool
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest, "INVALID_ARGUMENT", false},
		{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", false},
		{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN", false},
		{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND", false},
		{domain.ErrConflict, http.StatusConflict, "CONFLICT", false},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", true},
		{domain.ErrCircuitOpen, http.StatusServiceUnavailable, "CIRCUIT_OPEN", true},
		{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE", true},
		{domain.ErrSchemaInvalid, http.StatusServiceUnavailable, "SCHEMA_INVALID", false},
		{errors.New("anything else"), http.StatusInternalServerError, "INTERNAL", false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, nil, tc.err, nil)
		assert.Equal(t, tc.status, rec.Code, tc.code)
		got := decodeError(t, rec)
		assert.Equal(t, tc.code, got.Code)
		assert.Equal(t, tc.retryable, got.Retryable, tc.code)
	}
}

func TestWriteError_WrappedSentinel(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, nil, fmt.Errorf("op=stock.price: %w", domain.ErrUnavailable), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, "UNAVAILABLE", got.Code)
	assert.Contains(t, got.Message, "op=stock.price")
}

func TestWriteError_AppErrorOverrides(t *testing.T) {
	rec := httptest.NewRecorder()
	err := domain.Unavailablef("price fetch failed for %s: %v", "AAPL", "dial refused")
	writeError(rec, nil, err, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	got := decodeError(t, rec)
	assert.True(t, got.Retryable)
	assert.NotEmpty(t, got.Message)
}

func TestValidateSearchQuery(t *testing.T) {
	assert.True(t, ValidateSearchQuery("Apple Inc.").Valid)
	assert.True(t, ValidateSearchQuery("AT&T").Valid)

	res := ValidateSearchQuery("  ")
	assert.False(t, res.Valid)
	assert.Equal(t, "REQUIRED", res.Errors[0].Code)

	res = ValidateSearchQuery(strings.Repeat("a", 101))
	assert.False(t, res.Valid)
	assert.Equal(t, "TOO_LONG", res.Errors[0].Code)

	res = ValidateSearchQuery("drop table; --")
	assert.False(t, res.Valid)
	assert.Equal(t, "INVALID_FORMAT", res.Errors[0].Code)
}

func TestValidateRange(t *testing.T) {
	assert.True(t, ValidateRange("").Valid)
	for _, rng := range []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "max"} {
		assert.True(t, ValidateRange(rng).Valid, rng)
	}
	assert.False(t, ValidateRange("7d").Valid)
}

func TestValidateLimit(t *testing.T) {
	n, res := ValidateLimit("", 50)
	assert.True(t, res.Valid)
	assert.Zero(t, n)

	n, res = ValidateLimit("25", 50)
	assert.True(t, res.Valid)
	assert.Equal(t, 25, n)

	_, res = ValidateLimit("0", 50)
	assert.False(t, res.Valid)
	_, res = ValidateLimit("51", 50)
	assert.False(t, res.Valid)
	_, res = ValidateLimit("abc", 50)
	assert.False(t, res.Valid)
}

func TestValidateDate(t *testing.T) {
	assert.True(t, ValidateDate("start_date", "").Valid)
	assert.True(t, ValidateDate("start_date", "2024-01-31").Valid)
	assert.False(t, ValidateDate("start_date", "31-01-2024").Valid)
	assert.False(t, ValidateDate("start_date", "2024-13-01").Valid)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \x00"))
	assert.Len(t, SanitizeString(strings.Repeat("x", 1500)), 1000)
}
