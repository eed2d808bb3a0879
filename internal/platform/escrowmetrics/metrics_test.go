package escrowmetrics

import (
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReleaseOutcomesAreCountedPerLabel(t *testing.T) {
	m := New()
	m.ReleaseOutcome(domain.OutcomeSuccess)
	m.ReleaseOutcome(domain.OutcomeAlreadyReleased)
	m.ReleaseOutcome(domain.OutcomeAlreadyReleased)

	if got := testutil.ToFloat64(m.releaseOutcomes.WithLabelValues(string(domain.OutcomeSuccess))); got != 1 {
		t.Fatalf("success count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.releaseOutcomes.WithLabelValues(string(domain.OutcomeAlreadyReleased))); got != 2 {
		t.Fatalf("already_released count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.releaseOutcomes.WithLabelValues(string(domain.OutcomeTransferFailed))); got != 0 {
		t.Fatalf("transfer_failed count = %v, want 0", got)
	}
}

func TestCountersAndWalletStatus(t *testing.T) {
	m := New()
	m.ContractCreated()
	m.DoubleSweepHazard()
	m.SweepUnrecorded()
	m.RecordError(domain.ErrorCategoryStorage)
	m.ObserveWalletCall("sweep_all", 20*time.Millisecond, fmt.Errorf("x: %w", domain.ErrWalletRejected))
	m.ObserveWalletCall("get_balance", time.Millisecond, nil)
	m.ObserveWalletCall("refresh", time.Millisecond, domain.ErrWalletTransport)

	if got := testutil.ToFloat64(m.contractsCreated); got != 1 {
		t.Fatalf("created = %v", got)
	}
	if got := testutil.ToFloat64(m.doubleSweepHazard); got != 1 {
		t.Fatalf("hazard = %v", got)
	}
	if got := testutil.ToFloat64(m.sweepUnrecorded); got != 1 {
		t.Fatalf("unrecorded sweeps = %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues(domain.ErrorCategoryStorage)); got != 1 {
		t.Fatalf("storage errors = %v", got)
	}
	if n := testutil.CollectAndCount(m.walletCalls); n != 3 {
		t.Fatalf("expected 3 wallet call series, got %d", n)
	}
}

func TestHandlerExposesEscrowSeries(t *testing.T) {
	m := New()
	m.RPCRequest("escrow.release", -32004)
	m.ReleaseOutcome(domain.OutcomeInsufficientFunds)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	for _, want := range []string{
		`escrow_release_outcomes_total{outcome="insufficient_funds"} 1`,
		`escrow_rpc_requests_total{code="-32004",method="escrow.release"} 1`,
		`escrow_double_sweep_hazard_total 0`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in scrape output", want)
		}
	}
}
