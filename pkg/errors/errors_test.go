package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMetadata(t *testing.T) {
	cases := map[Code]struct {
		status    int
		retryable bool
		details   bool
	}{
		CodeValidation:        {http.StatusBadRequest, false, true},
		CodeUnauthorized:      {http.StatusUnauthorized, false, false},
		CodeForbidden:         {http.StatusForbidden, false, false},
		CodeNotFound:          {http.StatusNotFound, false, true},
		CodeConflict:          {http.StatusConflict, false, false},
		CodeStateConflict:     {http.StatusUnprocessableEntity, false, true},
		CodeInsufficientStock: {http.StatusConflict, false, true},
		CodeCartStale:         {http.StatusConflict, false, false},
		CodeSignature:         {http.StatusUnauthorized, false, false},
		CodeTransient:         {http.StatusServiceUnavailable, true, false},
		CodeInternal:          {http.StatusInternalServerError, true, false},
		CodeDependency:        {http.StatusServiceUnavailable, true, true},
	}
	require.Len(t, metadataByCode, len(cases), "every code needs a row here")
	for code, want := range cases {
		meta := MetadataFor(code)
		assert.Equal(t, want.status, meta.HTTPStatus, code)
		assert.Equal(t, want.retryable, meta.Retryable, code)
		assert.Equal(t, want.details, meta.DetailsAllowed, code)
		assert.NotEmpty(t, meta.PublicMessage, code)
	}
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestErrorFormattingAndChain(t *testing.T) {
	plain := Newf(CodeValidation, "cart exceeds %d lines", 100)
	assert.Equal(t, "VALIDATION_ERROR: cart exceeds 100 lines", plain.Error())
	assert.Nil(t, plain.Details())
	assert.Same(t, plain, plain.WithDetails(map[string]any{"max": 100}))
	assert.Equal(t, map[string]any{"max": 100}, plain.Details())

	cause := stdErrors.New("serialization failure")
	wrapped := Wrap(CodeTransient, cause, "reserve stock")
	assert.Equal(t, "TRANSIENT_STORE_ERROR: reserve stock: serialization failure", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, "reserve stock", wrapped.Message())
	assert.Equal(t, "CONFLICT: no cause", Wrap(CodeConflict, nil, "no cause").Error())

	var missing *Error
	assert.Equal(t, CodeInternal, missing.Code())
	assert.Nil(t, missing.WithDetails("ignored"))
	assert.NoError(t, missing.Unwrap())
}

func TestHasCodeAndRetryable(t *testing.T) {
	err := fmt.Errorf("checkout: %w", New(CodeTransient, "lost race"))
	assert.True(t, HasCode(err, CodeTransient))
	assert.False(t, HasCode(err, CodeConflict))
	assert.True(t, IsRetryable(err))

	assert.False(t, IsRetryable(New(CodeInsufficientStock, "short")))
	assert.False(t, IsRetryable(stdErrors.New("plain")))
	assert.False(t, HasCode(nil, CodeInternal))
	assert.Nil(t, As(stdErrors.New("plain")))
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "variants_stock_check", TableName: "variants", Message: "check violation"}
	dump := Dump(Wrap(CodeInternal, pgErr, "update stock"))

	assert.Equal(t, CodeInternal, dump.Code)
	assert.Equal(t, "23514", dump.PGCode)
	assert.Equal(t, "variants_stock_check", dump.PGConstraint)
	assert.Equal(t, "variants", dump.PGTable)
	assert.Len(t, dump.Chain, 2)
}
