package contract

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sbellem/SiennaNetwork/internal/circuitbreaker"
)

// Metrics holds the executor's Prometheus collectors
type Metrics struct {
	txTotal      *prometheus.CounterVec
	txDuration   *prometheus.HistogramVec
	queryTotal   *prometheus.CounterVec
	messages     *prometheus.CounterVec
	breakerState prometheus.Gauge
	height       prometheus.Gauge
	blockTime    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg, if any
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		txTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_transactions_total",
				Help: "Total number of transactions by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		txDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rewards_transaction_duration_seconds",
				Help:    "Transaction execution time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		queryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_queries_total",
				Help: "Total number of queries by name and outcome",
			},
			[]string{"query", "outcome"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_token_messages_total",
				Help: "Token messages dispatched by committed transactions",
			},
			[]string{"kind"},
		),
		breakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rewards_circuit_breaker_state",
				Help: "Budget query circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		height: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rewards_height",
				Help: "Number of committed transactions",
			},
		),
		blockTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rewards_block_time_seconds",
				Help: "Block time of the last committed transaction",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.txTotal,
			m.txDuration,
			m.queryTotal,
			m.messages,
			m.breakerState,
			m.height,
			m.blockTime,
		)
	}
	return m
}

func (m *Metrics) setBreakerState(s circuitbreaker.State) {
	m.breakerState.Set(float64(s))
}
