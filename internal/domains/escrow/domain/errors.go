package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("contract not found")
	ErrDuplicateID     = errors.New("contract id already exists")
	ErrAlreadyReleased = errors.New("contract funds already released")
	ErrProvision       = errors.New("subaddress provisioning failed")
	ErrWalletTransport = errors.New("wallet rpc transport failure")
	ErrWalletRejected  = errors.New("wallet rpc rejected the request")
	ErrLockUnavailable = errors.New("contract lock unavailable")
	ErrInvalidInput    = errors.New("invalid input")
)

// ErrInvalidRecord wraps ErrInvalidInput with a reason.
func ErrInvalidRecord(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

const (
	ErrorCategoryAPI     = "api"
	ErrorCategoryStorage = "storage"
	ErrorCategoryWallet  = "wallet"
)

// CategorizedError attaches a metrics/logging category to an error.
type CategorizedError struct {
	Category string
	Err      error
}

func (e *CategorizedError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *CategorizedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func normalizeErrorCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case ErrorCategoryStorage:
		return ErrorCategoryStorage
	case ErrorCategoryWallet:
		return ErrorCategoryWallet
	default:
		return ErrorCategoryAPI
	}
}

func WrapCategorizedError(category string, err error) error {
	if err == nil {
		return nil
	}
	var existing *CategorizedError
	if errors.As(err, &existing) {
		return err
	}
	return &CategorizedError{
		Category: normalizeErrorCategory(category),
		Err:      err,
	}
}

func ErrorCategory(err error) string {
	var classified *CategorizedError
	if errors.As(err, &classified) {
		return normalizeErrorCategory(classified.Category)
	}
	return ErrorCategoryAPI
}
