package handlertools

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owlfacerec/owlface/pkg/models"
)

func TestDecodeBase64Image(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	padded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name    string
		input   string
		want    []byte
		wantErr bool
	}{
		{"standard", padded, raw, false},
		{"unpadded", base64.RawStdEncoding.EncodeToString(raw[:4]), raw[:4], false},
		{"data url", "data:image/png;base64," + padded, raw, false},
		{"surrounding whitespace", "  " + padded + "\n", raw, false},
		{"data url without base64", "data:image/png," + padded, nil, true},
		{"not base64", "!!!not-base64!!!", nil, true},
		{"empty", "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64Image(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{models.NewBadRequestError("x"), http.StatusBadRequest, "bad_request"},
		{models.NewDecodeError("x", nil), http.StatusBadRequest, "decode_error"},
		{models.NewInvalidQueryError("x"), http.StatusBadRequest, "invalid_query"},
		{models.NewInferenceError("x", nil), http.StatusBadGateway, "inference_error"},
		{models.NewDimensionMismatchError(512, 128), http.StatusInternalServerError, "dimension_mismatch"},
		{models.NewDurabilityError("x", nil), http.StatusServiceUnavailable, "durability_error"},
		{models.NewInferenceError("x", context.Canceled), statusClientClosedRequest, "cancelled"},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
		{errors.New(requestTooLargeMessage), http.StatusRequestEntityTooLarge, "request_too_large"},
		{errors.New("boom"), http.StatusTeapot, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := StatusForError(tt.err, http.StatusTeapot)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRenderError(t *testing.T) {
	rr := httptest.NewRecorder()
	RenderError(rr, models.NewDurabilityError("insert failed", errors.New("timeout")), http.StatusInternalServerError)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body APIError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "durability_error", body.Code)
	assert.Contains(t, body.Message, "insert failed")
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"gate"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	assert.Equal(t, "gate", dst.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))
	assert.ErrorIs(t, DecodeJSON(req, &dst), models.ErrBadRequest)
}
