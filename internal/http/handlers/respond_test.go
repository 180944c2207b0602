package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibhi/bitwarden-serverless/internal/auth"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/twofactor"
)

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "validation",
			err:        &auth.ValidationError{Message: "Invalid key"},
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"ValidationErrors":{"":["Invalid key"]},"Object":"error"}`,
		},
		{
			name:       "wrapped invalid u2f response",
			err:        fmt.Errorf("%w: bad signature", twofactor.ErrInvalidResponse),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"ValidationErrors":{"":["Invalid U2F response"]},"Object":"error"}`,
		},
		{
			name:       "unknown key",
			err:        twofactor.ErrKeyNotFound,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"ValidationErrors":{"":["U2F key not found"]},"Object":"error"}`,
		},
		{
			name:       "compromised device",
			err:        fmt.Errorf("validate: %w", twofactor.ErrDeviceCompromised),
			wantStatus: http.StatusForbidden,
			wantBody:   `{"Message":"This device might be compromised!","Object":"error"}`,
		},
		{
			name:       "unexpected",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"Message":"Internal error","Object":"error"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/two-factor/u2f", nil)

			respondServiceError(w, r, logging.Nop(), tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestDecodeJSON_RejectsMalformedBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/accounts/register", nil)
	r.Body = http.NoBody

	var dst map[string]any
	assert.False(t, decodeJSON(w, r, &dst))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "error", body["Object"])
}
