package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certledger/pkg/domain-errors"
)

type lookupRequest struct {
	Fingerprint string `json:"fingerprint"`
}

// normalizingRequest implements every preparation hook.
type normalizingRequest struct {
	Holder    string `json:"holder"`
	sanitized bool
}

func (r *normalizingRequest) Sanitize()  { r.sanitized = true }
func (r *normalizingRequest) Normalize() { r.Holder = strings.TrimSpace(r.Holder) }
func (r *normalizingRequest) Validate() error {
	if r.Holder == "" {
		return errors.New("holder is required")
	}
	return nil
}

type domainErrorRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func (r *domainErrorRequest) Validate() error {
	if r.Fingerprint == "" {
		return dErrors.New(dErrors.CodeBadRequest, "fingerprint is required")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestDecodeJSON(t *testing.T) {
	t.Run("decodes known fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"fingerprint":"ab12"}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[lookupRequest](w, req, discardLogger())

		require.True(t, ok)
		assert.Equal(t, "ab12", result.Fingerprint)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"fingerprint":"ab","extra":1}`))
		w := httptest.NewRecorder()

		result, ok := DecodeJSON[lookupRequest](w, req, discardLogger())

		assert.False(t, ok)
		assert.Nil(t, result)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(""))
		w := httptest.NewRecorder()

		_, ok := DecodeJSON[lookupRequest](w, req, discardLogger())

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("runs hooks in order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"holder":"  0xabc "}`))
		w := httptest.NewRecorder()

		result, ok := DecodeAndPrepare[normalizingRequest](w, req, discardLogger())

		require.True(t, ok)
		assert.True(t, result.sanitized)
		assert.Equal(t, "0xabc", result.Holder)
	})

	t.Run("plain validation error maps to validation_error", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"holder":"   "}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[normalizingRequest](w, req, discardLogger())

		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, "validation_error", body["error"])
		assert.Contains(t, body["error_description"], "holder is required")
	})

	t.Run("domain error code is preserved", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"fingerprint":""}`))
		w := httptest.NewRecorder()

		_, ok := DecodeAndPrepare[domainErrorRequest](w, req, discardLogger())

		assert.False(t, ok)
		assert.Equal(t, "bad_request", decodeError(t, w)["error"])
	})
}
