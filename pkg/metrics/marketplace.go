package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics records counters for the hot marketplace paths.
type MarketplaceMetrics struct {
	dispatchFanout  *prometheus.CounterVec
	webhookOutcomes *prometheus.CounterVec
	ledgerTransfers *prometheus.CounterVec
	settleDuration  *prometheus.HistogramVec
}

// NewMarketplaceMetrics registers the marketplace metrics on the provided registerer.
func NewMarketplaceMetrics(reg prometheus.Registerer) *MarketplaceMetrics {
	if reg == nil {
		return &MarketplaceMetrics{}
	}
	dispatchFanout := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_fanout_total",
		Help: "Broadcast fanout deliveries by outcome.",
	}, []string{"outcome"})
	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_webhook_total",
		Help: "Gateway webhook deliveries by outcome.",
	}, []string{"outcome"})
	ledgerTransfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Wallet ledger transfers by kind.",
	}, []string{"kind"})
	settleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_settle_duration_seconds",
		Help:    "Duration of payment settlement in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"purpose"})
	reg.MustRegister(dispatchFanout, webhookOutcomes, ledgerTransfers, settleDuration)
	return &MarketplaceMetrics{
		dispatchFanout:  dispatchFanout,
		webhookOutcomes: webhookOutcomes,
		ledgerTransfers: ledgerTransfers,
		settleDuration:  settleDuration,
	}
}

// IncDispatchFanout increments the fanout counter for the given outcome.
func (m *MarketplaceMetrics) IncDispatchFanout(outcome string) {
	if m == nil || m.dispatchFanout == nil {
		return
	}
	m.dispatchFanout.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncWebhookOutcome increments the webhook counter for the given outcome.
func (m *MarketplaceMetrics) IncWebhookOutcome(outcome string) {
	if m == nil || m.webhookOutcomes == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncLedgerTransfer increments the transfer counter for the given transaction kind.
func (m *MarketplaceMetrics) IncLedgerTransfer(kind string) {
	if m == nil || m.ledgerTransfers == nil {
		return
	}
	m.ledgerTransfers.WithLabelValues(normalizeLabel(kind)).Inc()
}

// ObserveSettleDuration records how long a settlement took for the purpose.
func (m *MarketplaceMetrics) ObserveSettleDuration(purpose string, duration time.Duration) {
	if m == nil || m.settleDuration == nil {
		return
	}
	m.settleDuration.WithLabelValues(normalizeLabel(purpose)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
