package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SwapMetrics tracks the offer lifecycle and the RPC surface serving it.
type SwapMetrics struct {
	requests      *prometheus.CounterVec
	offersOpen    prometheus.Gauge
	offersCreated prometheus.Counter
	settlements   prometheus.Counter
	cancellations prometheus.Counter
	staleSamples  prometheus.Counter
}

var (
	swapOnce     sync.Once
	swapRegistry *SwapMetrics
)

// Swap returns the process-wide swap metrics registry, creating and
// registering the collectors on first use.
func Swap() *SwapMetrics {
	swapOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "otcswap",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Count of JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
			offersOpen: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "otcswap",
				Subsystem: "engine",
				Name:      "offers_open",
				Help:      "Number of offers currently holding a vault deposit.",
			}),
			offersCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "otcswap",
				Subsystem: "engine",
				Name:      "offers_created_total",
				Help:      "Total offers accepted into custody.",
			}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "otcswap",
				Subsystem: "engine",
				Name:      "settlements_total",
				Help:      "Total offers settled against an oracle price.",
			}),
			cancellations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "otcswap",
				Subsystem: "engine",
				Name:      "cancellations_total",
				Help:      "Total offers withdrawn by their depositor.",
			}),
			staleSamples: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "otcswap",
				Subsystem: "oracle",
				Name:      "stale_samples_total",
				Help:      "Price samples rejected for exceeding the staleness bound.",
			}),
		}
		prometheus.MustRegister(
			swapRegistry.requests,
			swapRegistry.offersOpen,
			swapRegistry.offersCreated,
			swapRegistry.settlements,
			swapRegistry.cancellations,
			swapRegistry.staleSamples,
		)
	})
	return swapRegistry
}

func (m *SwapMetrics) ObserveRequest(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
}

func (m *SwapMetrics) OfferOpened() {
	if m == nil {
		return
	}
	m.offersCreated.Inc()
	m.offersOpen.Inc()
}

func (m *SwapMetrics) OfferSettled() {
	if m == nil {
		return
	}
	m.settlements.Inc()
	m.offersOpen.Dec()
}

func (m *SwapMetrics) OfferCancelled() {
	if m == nil {
		return
	}
	m.cancellations.Inc()
	m.offersOpen.Dec()
}

func (m *SwapMetrics) ObserveStaleSample() {
	if m == nil {
		return
	}
	m.staleSamples.Inc()
}
