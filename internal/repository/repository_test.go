package repository

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{"defaults", 0, -5, 20, 0},
		{"caps large pages", 1000, 40, 200, 40},
		{"keeps valid values", 50, 10, 50, 10},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			limit, offset := NormalizePage(tc.limit, tc.offset)
			assert.Equal(t, tc.wantLimit, limit)
			assert.Equal(t, tc.wantOffset, offset)
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "incident_tickets_one_pending_idx"}
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(ErrNotFound))
}

func TestValidID(t *testing.T) {
	assert.True(t, validID("7d3c2a6e-0b41-4c55-9a0e-3f7f1d2c8a10"))
	assert.False(t, validID("missing"))
	assert.False(t, validID(""))
}
