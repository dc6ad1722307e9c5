package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type poolMetrics struct {
	operations   *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	utilization  *prometheus.GaugeVec
	bridged      *prometheus.CounterVec
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *poolMetrics
)

// Pool returns the lazily-initialised metrics registry tracking lending pool
// activity.
func Pool() *poolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &poolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "skena",
				Subsystem: "pool",
				Name:      "operations_total",
				Help:      "Total pool operations segmented by pool, operation and outcome.",
			}, []string{"pool", "op", "outcome"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "skena",
				Subsystem: "pool",
				Name:      "liquidations_total",
				Help:      "Total liquidation executions segmented by pool and strategy.",
			}, []string{"pool", "strategy"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "skena",
				Subsystem: "pool",
				Name:      "utilization_bps",
				Help:      "Current pool utilization in basis points.",
			}, []string{"pool"}),
			bridged: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "skena",
				Subsystem: "bridge",
				Name:      "messages_total",
				Help:      "Cross-chain messages segmented by pool and direction.",
			}, []string{"pool", "direction"}),
		}
		prometheus.MustRegister(
			poolRegistry.operations,
			poolRegistry.liquidations,
			poolRegistry.utilization,
			poolRegistry.bridged,
		)
	})
	return poolRegistry
}

// RecordOperation counts one pool operation with its outcome.
func (m *poolMetrics) RecordOperation(pool, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(normalize(pool), normalize(op), outcome).Inc()
}

// RecordLiquidation counts one executed liquidation for the strategy.
func (m *poolMetrics) RecordLiquidation(pool, strategy string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(normalize(pool), normalize(strategy)).Inc()
}

// SetUtilization publishes the pool's utilization in basis points.
func (m *poolMetrics) SetUtilization(pool string, bps uint64) {
	if m == nil {
		return
	}
	m.utilization.WithLabelValues(normalize(pool)).Set(float64(bps))
}

// RecordBridgeMessage counts a cross-chain dispatch or receipt.
func (m *poolMetrics) RecordBridgeMessage(pool, direction string) {
	if m == nil {
		return
	}
	m.bridged.WithLabelValues(normalize(pool), normalize(direction)).Inc()
}

func normalize(label string) string {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return "unknown"
	}
	return label
}

// GaugeBig clamps a big integer into the float range a gauge can carry.
func GaugeBig(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}
