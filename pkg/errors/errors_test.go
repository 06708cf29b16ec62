package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeForbidden, status: http.StatusForbidden},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeInsufficientStock, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeReservationMismatch, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
			assert.Equal(t, tt.detailsOK, meta.DetailsAllowed)
			assert.NotEmpty(t, meta.PublicMessage)
		})
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, MetadataFor("SOMETHING_ELSE").HTTPStatus)
}

func TestClientFacing(t *testing.T) {
	assert.True(t, CodeInsufficientStock.ClientFacing())
	assert.True(t, CodeNotFound.ClientFacing())
	assert.False(t, CodeInternal.ClientFacing())
	assert.False(t, CodeDependency.ClientFacing())
	assert.False(t, Code("MADE_UP").ClientFacing())
}

func TestWrapAndAsThroughFmtWrapping(t *testing.T) {
	cause := stdErrors.New("db down")
	typed := Wrap(CodeDependency, cause, "load variant").WithDetails(map[string]any{"step": "lock"})
	wrapped := fmt.Errorf("reserve: %w", typed)

	got := As(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, CodeDependency, got.Code())
	assert.Equal(t, "load variant", got.Message())
	assert.Equal(t, map[string]any{"step": "lock"}, got.Details())
	assert.ErrorIs(t, wrapped, cause)
	assert.True(t, IsCode(wrapped, CodeDependency))
	assert.False(t, IsCode(wrapped, CodeNotFound))
	assert.Nil(t, As(cause))
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.Unwrap())
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_payment_tx", TableName: "orders", Message: "duplicate key"}
	err := Wrap(CodeConflict, pgErr, "persist order")

	dump := Dump(err)
	assert.Equal(t, CodeConflict, dump.Code)
	require.NotNil(t, dump.PG)
	assert.Equal(t, "23505", dump.PG.Code)
	assert.Equal(t, "ux_orders_payment_tx", dump.PG.Constraint)
	assert.False(t, dump.PG.Transient())
	assert.Len(t, dump.Chain, 2)

	fields := dump.Fields()
	assert.Equal(t, "orders", fields["pg_table"])
	assert.NotContains(t, fields, "pg_column")
	assert.NotContains(t, fields, "pg_transient")
}

func TestPostgresReadsBothDrivers(t *testing.T) {
	detail, ok := Postgres(fmt.Errorf("tx: %w", &pq.Error{Code: "40001", Table: "variants"}))
	require.True(t, ok)
	assert.Equal(t, "variants", detail.Table)
	assert.True(t, detail.Transient())

	detail, ok = Postgres(&pgconn.PgError{Code: "40P01"})
	require.True(t, ok)
	assert.True(t, detail.Transient())

	_, ok = Postgres(stdErrors.New("plain"))
	assert.False(t, ok)

	assert.Equal(t, true, Dump(&pgconn.PgError{Code: "55P03"}).Fields()["pg_transient"])
}

func TestDumpNil(t *testing.T) {
	assert.Equal(t, ErrorDump{}, Dump(nil))
}
