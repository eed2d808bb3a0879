package usecase

import (
	"context"
	"log/slog"
	"strconv"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"

	"golang.org/x/sync/singleflight"
)

// MinUnlockedBalance is the smallest unlocked balance, in atomic units, that
// may be swept. It covers the network fee of the sweep.
const MinUnlockedBalance uint64 = 20_000

// MeetsThreshold reports whether an unlocked balance may be released.
func MeetsThreshold(unlocked uint64) bool {
	return unlocked >= MinUnlockedBalance
}

// BalanceGate reads subaddress balances. Query is authoritative and returns
// wallet failures; Snapshot is for display and never fails.
type BalanceGate struct {
	source ports.BalanceSource
	logger *slog.Logger
	group  singleflight.Group
}

func NewBalanceGate(source ports.BalanceSource, logger *slog.Logger) *BalanceGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &BalanceGate{source: source, logger: logger}
}

func (g *BalanceGate) Query(ctx context.Context, index uint32) (domain.Balance, error) {
	bal, err := g.source.SubaddressBalance(ctx, index)
	if err != nil {
		return domain.Balance{}, domain.WrapCategorizedError(domain.ErrorCategoryWallet, err)
	}
	return bal, nil
}

// Snapshot coalesces concurrent display queries for the same index and
// substitutes a zero balance when the wallet cannot be reached.
func (g *BalanceGate) Snapshot(ctx context.Context, index uint32) domain.BalanceSnapshot {
	ch := g.group.DoChan(strconv.FormatUint(uint64(index), 10), func() (any, error) {
		return g.source.SubaddressBalance(context.WithoutCancel(ctx), index)
	})
	select {
	case <-ctx.Done():
		return domain.BalanceSnapshot{}
	case res := <-ch:
		if res.Err != nil {
			g.logger.Warn("balance snapshot unavailable", "component", "escrow", "operation", "balance.snapshot", "address_index", index, "error", res.Err.Error())
			return domain.BalanceSnapshot{}
		}
		return domain.BalanceSnapshot{Balance: res.Val.(domain.Balance), Available: true}
	}
}
