package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"
)

const escrowComponentName = "escrow"

// ReleaseCoordinator runs the release state machine. The whole sequence for a
// contract, from loading the record to committing the released flag, runs
// while holding that contract's lock, so the sweep is issued at most once.
// The in-process keyed lock is always taken; when the store also implements
// ports.ContractLocker its lock is held as well, which extends the exclusion
// to every daemon sharing the store.
type ReleaseCoordinator struct {
	store   ports.ContractStore
	locker  ports.ContractLocker
	gate    *BalanceGate
	sweeper ports.Sweeper
	locks   *keyedLocks
	metrics ports.Metrics
	logger  *slog.Logger

	drainMu  sync.Mutex
	draining bool
	inflight sync.WaitGroup
}

func NewReleaseCoordinator(
	store ports.ContractStore,
	gate *BalanceGate,
	sweeper ports.Sweeper,
	metrics ports.Metrics,
	logger *slog.Logger,
) *ReleaseCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	locker, _ := store.(ports.ContractLocker)
	return &ReleaseCoordinator{
		store:   store,
		locker:  locker,
		gate:    gate,
		sweeper: sweeper,
		locks:   newKeyedLocks(),
		metrics: metrics,
		logger:  logger,
	}
}

// Release attempts to sweep the contract's funds to its recipient. Refusals
// are reported as outcomes; the error is non-nil only for internal faults
// (lock or storage failures), in which case the outcome is empty.
func (c *ReleaseCoordinator) Release(ctx context.Context, contractID, suppliedSecret string) (domain.Outcome, error) {
	contractID = strings.TrimSpace(contractID)
	if !c.begin() {
		c.metrics.RecordError(domain.ErrorCategoryAPI)
		return "", fmt.Errorf("%w: daemon is shutting down", domain.ErrLockUnavailable)
	}
	defer c.inflight.Done()

	unlock, err := c.locks.acquire(ctx, contractID)
	if err != nil {
		c.metrics.RecordError(domain.ErrorCategoryAPI)
		return "", err
	}
	defer unlock()
	if c.locker != nil {
		unlockShared, err := c.locker.Lock(ctx, contractID)
		if err != nil {
			err = domain.WrapCategorizedError(domain.ErrorCategoryStorage, fmt.Errorf("%w: %w", domain.ErrLockUnavailable, err))
			c.metrics.RecordError(domain.ErrorCategoryStorage)
			c.logError("release.lock", contractID, err)
			return "", err
		}
		defer unlockShared()
	}

	outcome, err := c.releaseLocked(ctx, contractID, suppliedSecret)
	if err != nil {
		c.metrics.RecordError(domain.ErrorCategory(err))
		c.logError("release", contractID, err)
		return "", err
	}
	c.metrics.ReleaseOutcome(outcome)
	c.logInfo("release", contractID, "release finished", "outcome", string(outcome))
	return outcome, nil
}

// Drain refuses new releases and waits for the ones in flight, so a sweep the
// wallet has accepted gets its released flag committed before the store is
// closed. It returns ctx.Err() if ctx ends first.
func (c *ReleaseCoordinator) Drain(ctx context.Context) error {
	c.drainMu.Lock()
	c.draining = true
	c.drainMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ReleaseCoordinator) begin() bool {
	c.drainMu.Lock()
	defer c.drainMu.Unlock()
	if c.draining {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *ReleaseCoordinator) releaseLocked(ctx context.Context, contractID, suppliedSecret string) (domain.Outcome, error) {
	rec, err := c.store.Get(ctx, contractID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.OutcomeNotFound, nil
	}
	if err != nil {
		return "", domain.WrapCategorizedError(domain.ErrorCategoryStorage, err)
	}
	if rec.Released {
		return domain.OutcomeAlreadyReleased, nil
	}
	if !secretsEqual(rec.Secret, suppliedSecret) {
		return domain.OutcomeInvalidPassphrase, nil
	}

	bal, err := c.gate.Query(ctx, rec.AddressIndex)
	if err != nil {
		c.logWarn("release.balance", contractID, "balance query failed", "error", err.Error())
		return domain.OutcomeTransferError, nil
	}
	if !MeetsThreshold(bal.Unlocked) {
		return domain.OutcomeInsufficientFunds, nil
	}

	// A dispatched sweep and its commit must not be abandoned because the
	// caller went away; the wallet client bounds each call with a timeout.
	detached := context.WithoutCancel(ctx)
	res, err := c.sweeper.SweepAll(detached, rec.AddressIndex, rec.RecipientWallet)
	switch {
	case errors.Is(err, domain.ErrWalletRejected):
		c.logWarn("release.sweep", contractID, "wallet rejected sweep", "error", err.Error())
		return domain.OutcomeTransferFailed, nil
	case err != nil:
		c.logWarn("release.sweep", contractID, "sweep transport failure", "error", err.Error())
		return domain.OutcomeTransferError, nil
	}
	c.logInfo("release.sweep", contractID, "sweep accepted", "tx_hashes", strings.Join(res.TxHashes, ","), "unlocked_balance", bal.Unlocked)

	err = c.store.SetReleased(detached, contractID)
	switch {
	case err == nil:
		return domain.OutcomeSuccess, nil
	case errors.Is(err, domain.ErrAlreadyReleased):
		c.metrics.DoubleSweepHazard()
		c.logger.Error("contract was released concurrently after a successful sweep",
			"component", escrowComponentName,
			"operation", "release.commit",
			"contract_id", contractID,
			"tx_hashes", strings.Join(res.TxHashes, ","),
		)
		return domain.OutcomeAlreadyReleased, nil
	default:
		c.metrics.SweepUnrecorded()
		return "", domain.WrapCategorizedError(domain.ErrorCategoryStorage,
			fmt.Errorf("sweep %s succeeded but released flag was not persisted: %w", strings.Join(res.TxHashes, ","), err))
	}
}

func secretsEqual(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func (c *ReleaseCoordinator) logInfo(operation, contractID, message string, attrs ...any) {
	base := []any{
		"component", escrowComponentName,
		"operation", operation,
		"contract_id", contractID,
	}
	c.logger.Info(message, append(base, attrs...)...)
}

func (c *ReleaseCoordinator) logWarn(operation, contractID, message string, attrs ...any) {
	base := []any{
		"component", escrowComponentName,
		"operation", operation,
		"contract_id", contractID,
	}
	c.logger.Warn(message, append(base, attrs...)...)
}

func (c *ReleaseCoordinator) logError(operation, contractID string, err error) {
	c.logger.Error("service error",
		"component", escrowComponentName,
		"operation", operation,
		"category", domain.ErrorCategory(err),
		"contract_id", contractID,
		"error", err.Error(),
	)
}

type noopMetrics struct{}

func (noopMetrics) ContractCreated()              {}
func (noopMetrics) ReleaseOutcome(domain.Outcome) {}
func (noopMetrics) DoubleSweepHazard()            {}
func (noopMetrics) SweepUnrecorded()              {}
func (noopMetrics) RecordError(string)            {}
