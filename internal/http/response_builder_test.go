package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"monthbook/internal/core"
	"monthbook/internal/storage"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		JSON(map[string]int{"n": 1}).
		Write(w)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, contentTypeJSON, w.Header().Get("Content-Type"))
	assert.Equal(t, "value", w.Header().Get("X-Custom"))
	assert.JSONEq(t, `{"n":1}`, w.Body.String())
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().JSON(map[string]any{"f": func() {}}).Write(w)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"failed to encode response"}`, w.Body.String())
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		builder *JSONResponseBuilder
		code    int
		body    string
	}{
		{"bad request", BadRequestError("nope"), http.StatusBadRequest, `{"error":"nope"}`},
		{"not found", NotFoundError("gone"), http.StatusNotFound, `{"error":"gone"}`},
		{"internal", InternalServerError("boom"), http.StatusInternalServerError, `{"error":"boom"}`},
		{"too many", TooManyRequestsError(), http.StatusTooManyRequests, `{"error":"rate limit exceeded, please try again later"}`},
		{
			"validation",
			ValidationErrorResponse(&core.ValidationError{Field: "amount", Err: core.ErrNegativeAmount}),
			http.StatusBadRequest,
			`{"error":"amount must not be negative","field":"amount"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"validation", fmt.Errorf("wrapped: %w", &core.ValidationError{Field: "date", Err: core.ErrMissingDate}), http.StatusBadRequest},
		{"malformed", errMalformedBody, http.StatusBadRequest},
		{"export log disabled", storage.ErrExportLogDisabled, http.StatusNotFound},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			writeError(w, r, tt.err, "test")
			assert.Equal(t, tt.code, w.Code)
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}
