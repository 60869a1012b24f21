package amm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the engine.
type Metrics struct {
	SwapsTotal       *prometheus.CounterVec
	LiquidityOps     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	PoolsTotal       prometheus.Gauge
	ProtocolFees     *prometheus.CounterVec
	RewardsPaid      *prometheus.CounterVec
	RouteHops        prometheus.Histogram
	EventsFlushed    prometheus.Counter
	CheckpointErrors prometheus.Counter
}

// NewMetrics creates and registers the engine metrics on reg.
// A nil registerer yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SwapsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swaps_total",
			Help:      "Executed swaps, labeled by pool.",
		}, []string{"pool"}),
		LiquidityOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidity_operations_total",
			Help:      "Liquidity additions and removals, labeled by operation.",
		}, []string{"op"}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Rejected operations, labeled by operation and error kind.",
		}, []string{"op", "kind"}),
		PoolsTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pools",
			Help:      "Number of pools in the registry.",
		}),
		ProtocolFees: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_fee_credits_total",
			Help:      "Number of protocol fee credits, labeled by token.",
		}, []string{"token"}),
		RewardsPaid: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mining_harvests_total",
			Help:      "Harvests that paid a non-zero reward, labeled by reward token.",
		}, []string{"token"}),
		RouteHops: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_hops",
			Help:      "Hop count of routes returned by the optimizer.",
			Buckets:   []float64{1, 2},
		}),
		EventsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_flushed_total",
			Help:      "Pool events written to the event sink.",
		}),
		CheckpointErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoint_errors_total",
			Help:      "Failed snapshot checkpoints.",
		}),
	}
}

func (m *Metrics) observeError(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(op, ErrorKind(err)).Inc()
}
