package rpc

import (
	"context"
	"net/http"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/usecase"
)

// EscrowService is the use-case surface the JSON-RPC adapter drives.
type EscrowService interface {
	CreateContract(ctx context.Context, contractText, recipientWallet string) (usecase.CreatedContract, error)
	ContractView(ctx context.Context, contractID string, outcome domain.Outcome) (domain.ContractView, error)
	ReleaseFunds(ctx context.Context, contractID, secret string) (domain.Outcome, error)
}

// RequestObserver is told about every completed JSON-RPC call; code is 0 on
// success.
type RequestObserver interface {
	RPCRequest(method string, code int)
}

type Options struct {
	Addr           string
	Token          string
	AllowedOrigins []string

	RequestsPerSecond float64
	RequestBurst      int
	ReleasesPerMinute float64
	ReleaseBurst      int
	IdempotencyTTL    time.Duration

	ShutdownGracePeriod time.Duration

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Observer       RequestObserver
}
