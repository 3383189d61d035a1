package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

func render(t *testing.T, requestID string, err error) (int, types.APIError) {
	t.Helper()
	w := httptest.NewRecorder()
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	WriteError(context.Background(), logger.Nop(), w, err)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body types.ErrorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body.Error
}

func TestWriteSuccessStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccessStatus(w, http.StatusCreated, map[string]string{"id": "ord-1"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.JSONEq(t, `{"data":{"id":"ord-1"}}`, w.Body.String())

	w = httptest.NewRecorder()
	WriteSuccess(w, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWriteErrorStatusesAndMessages(t *testing.T) {
	cases := []struct {
		code    pkgerrors.Code
		status  int
		message string
	}{
		{pkgerrors.CodeValidation, http.StatusBadRequest, "quantity must be positive"},
		{pkgerrors.CodeNotFound, http.StatusNotFound, "quantity must be positive"},
		{pkgerrors.CodeInsufficientStock, http.StatusConflict, "quantity must be positive"},
		{pkgerrors.CodeCartStale, http.StatusConflict, "quantity must be positive"},
		{pkgerrors.CodeStateConflict, http.StatusUnprocessableEntity, "quantity must be positive"},
		{pkgerrors.CodeSignature, http.StatusUnauthorized, "signature verification failed"},
		{pkgerrors.CodeTransient, http.StatusServiceUnavailable, pkgerrors.MetadataFor(pkgerrors.CodeTransient).PublicMessage},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			status, apiErr := render(t, "", pkgerrors.New(tc.code, "quantity must be positive"))
			require.Equal(t, tc.status, status)
			require.Equal(t, string(tc.code), apiErr.Code)
			require.Equal(t, tc.message, apiErr.Message)
		})
	}
}

func TestWriteErrorDetailsOnlyWhenAllowed(t *testing.T) {
	details := map[string]any{"field": "quantity"}

	_, apiErr := render(t, "", pkgerrors.New(pkgerrors.CodeValidation, "bad input").WithDetails(details))
	require.Equal(t, details, apiErr.Details)

	_, apiErr = render(t, "", pkgerrors.New(pkgerrors.CodeInternal, "db down").WithDetails(details))
	require.Nil(t, apiErr.Details)
}

func TestWriteErrorHidesUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: relation orders does not exist"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "relation orders")

	status, apiErr := render(t, "", nil)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, string(pkgerrors.CodeInternal), apiErr.Code)
}

func TestWriteErrorRetryableAndRequestID(t *testing.T) {
	_, apiErr := render(t, "req-42", pkgerrors.New(pkgerrors.CodeTransient, "lock contention"))
	require.True(t, apiErr.Retryable)
	require.Equal(t, "req-42", apiErr.RequestID)

	_, apiErr = render(t, "", pkgerrors.New(pkgerrors.CodeInsufficientStock, "short"))
	require.False(t, apiErr.Retryable)
	require.Empty(t, apiErr.RequestID)
}
