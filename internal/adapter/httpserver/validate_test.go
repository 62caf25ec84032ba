package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBody(t *testing.T) {
	details, err := validateBody(credentialsRequest{Email: "trader@example.com", Password: "hunter2boogaloo"})
	require.NoError(t, err)
	assert.Nil(t, details)

	details, err = validateBody(credentialsRequest{Email: "not-an-email", Password: ""})
	require.Error(t, err)
	assert.Equal(t, "email", details["email"])
	assert.Equal(t, "required", details["password"])

	details, err = validateBody(alertRequest{Ticker: "AAPL", Condition: "sideways", TargetPrice: 150, Channels: []string{"fax"}})
	require.Error(t, err)
	assert.Equal(t, "oneof", details["condition"])
	assert.Contains(t, details, "channels[0]")
}

func TestRegister_RejectsInvalidBodyBeforeService(t *testing.T) {
	// Auth is nil: a validation failure must short-circuit before the
	// service is touched.
	h := &AuthHandlers{}

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"email":"nope","password":"secret123"}`)
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/v1/auth/register", body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decodeError(t, rec)
	assert.Equal(t, "INVALID_ARGUMENT", got.Code)
}

func TestCreateAlert_RejectsInvalidBodyBeforeService(t *testing.T) {
	s := &Server{}

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"ticker":"","condition":"above","target_price":0,"channels":[]}`)
	s.CreateAlert(rec, httptest.NewRequest(http.MethodPost, "/v1/alerts", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
