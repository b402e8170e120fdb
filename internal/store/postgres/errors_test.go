package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"kasirinaja/stockledger/internal/store"
)

func TestMapErrorClassifiesPostgresCodes(t *testing.T) {
	cases := []struct {
		name string
		err  *pgconn.PgError
		want error
	}{
		{"serialization", &pgconn.PgError{Code: serializationFailure}, store.ErrRetryable},
		{"deadlock", &pgconn.PgError{Code: deadlockDetected}, store.ErrRetryable},
		{"lock timeout", &pgconn.PgError{Code: lockNotAvailable}, store.ErrRetryable},
		{"numeric out of range", &pgconn.PgError{Code: numericOutOfRange, Message: "integer out of range"}, store.ErrValidation},
		{"duplicate sku", &pgconn.PgError{Code: uniqueViolation, ConstraintName: "variants_organization_id_sku_key"}, store.ErrValidation},
		{"second counting opname", &pgconn.PgError{Code: uniqueViolation, ConstraintName: "stock_opnames_one_counting_idx"}, store.ErrStateConflict},
		{"negative level", &pgconn.PgError{Code: checkViolation, ConstraintName: "stock_levels_non_negative"}, store.ErrInsufficientStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapError(fmt.Errorf("exec: %w", tc.err))
			require.ErrorIs(t, got, tc.want)
		})
	}
}

func TestMapErrorOutOfRangeNamesQuantity(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: numericOutOfRange, Message: "integer out of range"})

	var validation *store.ValidationError
	require.True(t, errors.As(err, &validation))
	require.Equal(t, "quantity", validation.Field)
}

func TestMapErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection reset")
	require.Same(t, plain, mapError(plain))
}
