package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"lendpool/core/events"
	"lendpool/native/lending"
)

// LendingMetrics tracks pool balances and lending activity.
type LendingMetrics struct {
	events        *prometheus.CounterVec
	volume        *prometheus.CounterVec
	losses        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	balances      *prometheus.GaugeVec
	paused        prometheus.Gauge
	closed        prometheus.Gauge
	lenderAPY     prometheus.Gauge
	projectedAPY  prometheus.Gauge
	stakerEarning prometheus.Gauge
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process-wide lending metrics registered with the
// default Prometheus registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = NewLending(prometheus.DefaultRegisterer)
	})
	return lendingRegistry
}

// NewLending builds a metrics set registered with reg.
func NewLending(reg prometheus.Registerer) *LendingMetrics {
	m := &LendingMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_events_total",
			Help: "Count of pool events by type.",
		}, []string{"type"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_volume_base_units_total",
			Help: "Token volume moved by pool operations, in base units.",
		}, []string{"type"}),
		losses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_default_losses_base_units_total",
			Help: "Default losses absorbed by the staker and by lenders.",
		}, []string{"bearer"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lending_operation_failures_total",
			Help: "Rejected pool operations by operation and error kind.",
		}, []string{"operation", "kind"}),
		balances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lending_pool_balance",
			Help: "Current pool balances in base units.",
		}, []string{"bucket"}),
		paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_pool_paused",
			Help: "1 when the pool is paused.",
		}),
		closed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_pool_closed",
			Help: "1 when the pool is closed to new deposits and loans.",
		}),
		lenderAPY: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_lender_apy_percent",
			Help: "Current lender APY at one decimal of precision.",
		}),
		projectedAPY: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_projected_lender_apy_percent",
			Help: "Lender APY if all liquidity were lent at the template rate.",
		}),
		stakerEarning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lending_staker_earnings_percent",
			Help: "Share of post-fee interest currently earned by the staker.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.volume, m.losses, m.failures, m.balances,
			m.paused, m.closed, m.lenderAPY, m.projectedAPY, m.stakerEarning)
	}
	return m
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Emit implements events.Emitter.
func (m *LendingMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	typ := evt.EventType()
	m.events.WithLabelValues(typ).Inc()
	switch e := evt.(type) {
	case events.PoolFlow:
		m.volume.WithLabelValues(typ).Add(toFloat(e.Amount))
	case events.LoanBorrowed:
		m.volume.WithLabelValues(typ).Add(toFloat(e.Amount))
	case events.LoanRepaid:
		m.volume.WithLabelValues(typ).Add(toFloat(e.Amount))
	case events.LoanDefaulted:
		m.losses.WithLabelValues("staker").Add(toFloat(e.StakerLoss))
		m.losses.WithLabelValues("lenders").Add(toFloat(e.LenderLoss))
	}
}

// RecordFailure counts a rejected operation.
func (m *LendingMetrics) RecordFailure(operation, kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(operation, kind).Inc()
}

// ObservePool publishes a balance snapshot.
func (m *LendingMetrics) ObservePool(b lending.PoolBalance) {
	if m == nil {
		return
	}
	m.balances.WithLabelValues("token").Set(toFloat(b.TokenBalance))
	m.balances.WithLabelValues("pool_funds").Set(toFloat(b.PoolFunds))
	m.balances.WithLabelValues("liquidity").Set(toFloat(b.RawLiquidity))
	m.balances.WithLabelValues("allocated").Set(toFloat(b.AllocatedFunds))
	m.balances.WithLabelValues("borrowed").Set(toFloat(b.BorrowedFunds))
	m.balances.WithLabelValues("pending_yield").Set(toFloat(b.PendingYield))
	m.balances.WithLabelValues("staked").Set(toFloat(b.StakedBalance))
	m.paused.Set(boolGauge(b.Paused))
	m.closed.Set(boolGauge(b.Closed))
}

// ObserveAPY publishes the current and projected lender APY and the staker
// earnings percent.
func (m *LendingMetrics) ObserveAPY(current, projected, stakerEarnings uint64) {
	if m == nil {
		return
	}
	m.lenderAPY.Set(float64(current) / 10)
	m.projectedAPY.Set(float64(projected) / 10)
	m.stakerEarning.Set(float64(stakerEarnings) / 10)
}
