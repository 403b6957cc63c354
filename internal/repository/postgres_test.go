package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyPgError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, transient: true},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, transient: true},
		{name: "connection failure", err: &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, transient: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyPgError(fmt.Errorf("save: %w", tt.err))
			if IsTransient(got) != tt.transient {
				t.Fatalf("IsTransient = %v, want %v", IsTransient(got), tt.transient)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error lost its cause: %v", got)
			}
		})
	}
}

func TestIsTransient_Wrapped(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrPersistence, &transientError{err: errors.New("timeout")})
	if !IsTransient(err) {
		t.Fatal("wrapped transient error not detected")
	}
	if !errors.Is(err, ErrPersistence) {
		t.Fatal("ErrPersistence lost")
	}
}
