package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapCategorizedErrorKeepsSentinelReachable(t *testing.T) {
	wrapped := WrapCategorizedError(ErrorCategoryWallet, fmt.Errorf("%w: dial refused", ErrWalletTransport))
	if !errors.Is(wrapped, ErrWalletTransport) {
		t.Fatalf("expected ErrWalletTransport to be reachable, got %v", wrapped)
	}
	if got := ErrorCategory(wrapped); got != ErrorCategoryWallet {
		t.Fatalf("expected category=%q, got %q", ErrorCategoryWallet, got)
	}
}

func TestWrapCategorizedErrorDoesNotRewrapExistingCategory(t *testing.T) {
	inner := WrapCategorizedError(ErrorCategoryStorage, errors.New("disk full"))
	outer := WrapCategorizedError(ErrorCategoryWallet, inner)
	if got := ErrorCategory(outer); got != ErrorCategoryStorage {
		t.Fatalf("expected original category %q, got %q", ErrorCategoryStorage, got)
	}
}

func TestErrorCategoryDefaultsToAPI(t *testing.T) {
	if got := ErrorCategory(errors.New("plain")); got != ErrorCategoryAPI {
		t.Fatalf("expected default category=%q, got %q", ErrorCategoryAPI, got)
	}
	if got := ErrorCategory(WrapCategorizedError("unknown", errors.New("x"))); got != ErrorCategoryAPI {
		t.Fatalf("expected unknown category to normalize to %q, got %q", ErrorCategoryAPI, got)
	}
}

func TestRecordValidateRejectsEmptySecret(t *testing.T) {
	rec := ContractRecord{ContractID: "ctr_1", RecipientWallet: "R1", ContractWallet: "S1"}
	if err := rec.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	rec.Secret = "s"
	if err := rec.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}
}
