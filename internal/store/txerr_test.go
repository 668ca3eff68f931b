package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestRetryableAsConflict(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"deadlock", &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"wrapped commit failure", fmt.Errorf("commit transaction: %w", &pgconn.PgError{Code: "40001"}), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := retryableAsConflict(tt.err)
			assert.Equal(t, tt.conflict, errors.Is(got, ErrConflict))
			assert.ErrorIs(t, got, tt.err)
		})
	}
}
