package rpc

import (
	"errors"
	"strings"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
)

const (
	codeParseError         = -32700
	codeInvalidRequest     = -32600
	codeMethodNotFound     = -32601
	codeInvalidParams      = -32602
	codeInternal           = -32000
	codeContractNotFound   = -32004
	codeProvisionFailed    = -32010
	codeContractBusy       = -32011
	codeReleaseRateLimited = -32029
	codeIdempotencyReuse   = -32090
	codeServiceUnavailable = -32099
)

func rpcInvalidParams() *rpcError {
	return &rpcError{Code: codeInvalidParams, Message: "invalid params"}
}

// mapServiceError hides storage and wallet details; those are logged by the
// use case layer.
func mapServiceError(err error) *rpcError {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return &rpcError{Code: codeContractNotFound, Message: domain.OutcomeNotFound.Message()}
	case errors.Is(err, domain.ErrInvalidInput):
		return &rpcError{Code: codeInvalidParams, Message: invalidInputMessage(err)}
	case errors.Is(err, domain.ErrProvision):
		return &rpcError{Code: codeProvisionFailed, Message: "failed to generate contract wallet"}
	case errors.Is(err, domain.ErrLockUnavailable):
		return &rpcError{Code: codeContractBusy, Message: "contract is busy, try again later"}
	default:
		return &rpcError{Code: codeInternal, Message: "internal error"}
	}
}

func invalidInputMessage(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, domain.ErrInvalidInput.Error()+": "); i >= 0 {
		return "invalid params: " + msg[i+len(domain.ErrInvalidInput.Error())+2:]
	}
	return "invalid params"
}
