package domain

import (
	"errors"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "order not found", err: ErrOrderNotFound, want: true},
		{name: "product not found", err: ErrProductNotFound, want: true},
		{name: "wrapped reference", err: errors.Join(ErrReferenceNotFound, errors.New("p-1")), want: true},
		{name: "validation", err: ErrOrderNumberRequired, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "idempotency already exists",
			err:  ErrIdempotencyKeyAlreadyExists,
			want: true,
		},
		{
			name: "idempotency hash mismatch",
			err:  ErrIdempotencyHashMismatch,
			want: true,
		},
		{
			name: "wrapped idempotency conflict",
			err:  errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")),
			want: true,
		},
		{
			name: "non idempotency error",
			err:  ErrOrderConflict,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tt.err); got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPersistenceError(t *testing.T) {
	driverErr := errors.New("connection reset")

	err := PersistenceError("insert order", driverErr)
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, driverErr) {
		t.Fatalf("expected driver error to be kept in chain, got %v", err)
	}
	if got := err.Error(); got != "insert order: persistence failure: connection reset" {
		t.Fatalf("unexpected message %q", got)
	}

	if again := PersistenceError("commit", err); again != err {
		t.Fatalf("already wrapped error must be returned as is, got %v", again)
	}
	if PersistenceError("noop", nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}

func TestSentinelHierarchy(t *testing.T) {
	if !errors.Is(ErrOrderCompleted, ErrInvalidOperation) {
		t.Fatal("ErrOrderCompleted must be an ErrInvalidOperation")
	}
	if !errors.Is(ErrOrderConflict, ErrPersistence) {
		t.Fatal("ErrOrderConflict must be an ErrPersistence")
	}
	for _, err := range []error{ErrOrderNumberRequired, ErrItemQtyInvalid, ErrProductNameInvalid, ErrNothingToUpdate} {
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%v must be an ErrValidation", err)
		}
	}
}
