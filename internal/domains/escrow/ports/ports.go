package ports

import (
	"context"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
)

// ContractStore persists contract records. Implementations serialize their
// operations so that SetReleased behaves as a compare-and-set.
type ContractStore interface {
	// Insert fails with domain.ErrDuplicateID when the id already exists.
	Insert(ctx context.Context, rec domain.ContractRecord) error
	// Get fails with domain.ErrNotFound when the id is unknown.
	Get(ctx context.Context, contractID string) (domain.ContractRecord, error)
	// SetReleased flips released false -> true. It fails with
	// domain.ErrAlreadyReleased if the flag was already set and with
	// domain.ErrNotFound if the id is unknown.
	SetReleased(ctx context.Context, contractID string) error
}

// ContractLocker is implemented by stores shared between processes. Lock
// excludes every other holder of the same contract id, in any process, until
// unlock is called.
type ContractLocker interface {
	Lock(ctx context.Context, contractID string) (unlock func(), err error)
}

// SubaddressProvisioner creates a receiving address that has never been bound
// to another contract.
type SubaddressProvisioner interface {
	Provision(ctx context.Context) (domain.Subaddress, error)
}

// BalanceSource reads the balance of one subaddress from the wallet.
type BalanceSource interface {
	SubaddressBalance(ctx context.Context, index uint32) (domain.Balance, error)
}

// SweepResult describes a sweep accepted by the wallet.
type SweepResult struct {
	TxHashes []string
	Amounts  []uint64
	Fees     []uint64
}

// Sweeper moves the whole unlocked balance of a subaddress to a destination.
// Transport failures wrap domain.ErrWalletTransport; an explicit error
// payload from the wallet wraps domain.ErrWalletRejected.
type Sweeper interface {
	SweepAll(ctx context.Context, index uint32, destination string) (SweepResult, error)
}

// SecretPolicy generates release secrets.
type SecretPolicy interface {
	Name() string
	NewSecret() (string, error)
}

// Metrics receives escrow domain events.
type Metrics interface {
	ContractCreated()
	ReleaseOutcome(outcome domain.Outcome)
	DoubleSweepHazard()
	// SweepUnrecorded fires when a sweep went out but SetReleased failed.
	SweepUnrecorded()
	RecordError(category string)
}
