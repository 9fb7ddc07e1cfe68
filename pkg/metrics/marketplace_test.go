package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMarketplaceMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMarketplaceMetrics(reg)
	metrics.IncDispatchFanout("delivered")
	metrics.IncWebhookOutcome("settled")
	metrics.IncLedgerTransfer("payment")
	metrics.ObserveSettleDuration("bill_payment", 250*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "dispatch_fanout_total", "outcome", "delivered"); err != nil {
		t.Fatalf("fetch fanout: %v", err)
	} else if got != 1 {
		t.Fatalf("expected fanout=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "gateway_webhook_total", "outcome", "settled"); err != nil {
		t.Fatalf("fetch webhook: %v", err)
	} else if got != 1 {
		t.Fatalf("expected webhook=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "ledger_transfers_total", "kind", "payment"); err != nil {
		t.Fatalf("fetch transfer: %v", err)
	} else if got != 1 {
		t.Fatalf("expected transfer=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "payment_settle_duration_seconds", "purpose", "bill_payment"); err != nil {
		t.Fatalf("fetch settle duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestMarketplaceMetricsNilRegisterer(t *testing.T) {
	metrics := NewMarketplaceMetrics(nil)
	metrics.IncDispatchFanout("delivered")
	metrics.IncWebhookOutcome("")
	metrics.ObserveSettleDuration("", time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
