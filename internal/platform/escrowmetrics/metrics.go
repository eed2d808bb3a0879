// Package escrowmetrics exports escrow and wallet RPC counters to Prometheus.
package escrowmetrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"xmr-escrow/go-backend/internal/domains/escrow/domain"
	"xmr-escrow/go-backend/internal/domains/escrow/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "escrow"

// Metrics owns its registry so that several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	contractsCreated  prometheus.Counter
	releaseOutcomes   *prometheus.CounterVec
	doubleSweepHazard prometheus.Counter
	sweepUnrecorded   prometheus.Counter
	errors            *prometheus.CounterVec
	walletCalls       *prometheus.HistogramVec
	rpcRequests       *prometheus.CounterVec
}

var _ ports.Metrics = (*Metrics)(nil)

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		contractsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contracts_created_total",
			Help:      "Contracts persisted after subaddress provisioning",
		}),
		// Labels: outcome (success, already_released, invalid_passphrase, ...)
		releaseOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_outcomes_total",
			Help:      "Release attempts by outcome",
		}, []string{"outcome"}),
		doubleSweepHazard: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "double_sweep_hazard_total",
			Help:      "Sweeps accepted by the wallet whose released commit lost a race",
		}),
		sweepUnrecorded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_unrecorded_total",
			Help:      "Sweeps accepted by the wallet whose released flag could not be persisted",
		}),
		// Labels: category (api, storage, wallet)
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Internal errors by category",
		}, []string{"category"}),
		// Labels: method (create_address, refresh, get_balance, sweep_all), status (ok, rejected, transport)
		walletCalls: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wallet_rpc",
			Name:      "call_duration_seconds",
			Help:      "Wallet RPC call latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "status"}),
		// Labels: method, code (0 for success, JSON-RPC error code otherwise)
		rpcRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "JSON-RPC requests served by method and result code",
		}, []string{"method", "code"}),
	}
	for _, o := range domain.AllOutcomes() {
		m.releaseOutcomes.WithLabelValues(string(o))
	}
	for _, c := range []string{domain.ErrorCategoryAPI, domain.ErrorCategoryStorage, domain.ErrorCategoryWallet} {
		m.errors.WithLabelValues(c)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ContractCreated() { m.contractsCreated.Inc() }

func (m *Metrics) ReleaseOutcome(outcome domain.Outcome) {
	m.releaseOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) DoubleSweepHazard() { m.doubleSweepHazard.Inc() }

func (m *Metrics) SweepUnrecorded() { m.sweepUnrecorded.Inc() }

func (m *Metrics) RecordError(category string) {
	m.errors.WithLabelValues(category).Inc()
}

// ObserveWalletCall satisfies walletrpc.CallObserver.
func (m *Metrics) ObserveWalletCall(method string, elapsed time.Duration, err error) {
	m.walletCalls.WithLabelValues(method, walletStatus(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) RPCRequest(method string, code int) {
	m.rpcRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func walletStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrWalletRejected):
		return "rejected"
	default:
		return "transport"
	}
}
