package metrics

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

func TestCounterMetricsExportsSalesAndCloses(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCounterMetrics(reg)

	m.ObserveSale(model.SalesRecord{Currency: model.CurrencyUSD, Amount: 100, LocalAmountPaid: 5850})
	m.ObserveSale(model.SalesRecord{Currency: model.CurrencyUSD, Amount: 20, LocalAmountPaid: 1170})
	m.IncShiftOpened()
	m.ObserveClose(model.ClosedShift{
		Difference:            -50,
		PerCurrencyDifference: map[model.Currency]float64{model.CurrencyEUR: 5},
	}, model.StatusShortage)
	m.IncLogin(false)
	m.ObserveRequest(http.MethodPost, http.StatusOK, 20*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	checks := []struct {
		name, label, value string
		want               float64
	}{
		{"exchange_sales_total", "currency", "USD", 2},
		{"exchange_foreign_received_total", "currency", "USD", 120},
		{"exchange_shifts_closed_total", "status", "shortage", 1},
		{"exchange_login_attempts_total", "result", "failure", 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s{%s=%q} = %v, want %v", c.name, c.label, c.value, got, c.want)
		}
	}

	if got, err := fetchGaugeValue(mfs, "exchange_last_close_difference", "currency", "DOP"); err != nil {
		t.Fatalf("fetch difference: %v", err)
	} else if got != -50 {
		t.Fatalf("expected DOP difference -50, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "exchange_http_request_duration_seconds", "status", "200"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *CounterMetrics
	m.ObserveSale(model.SalesRecord{})
	m.IncShiftOpened()
	m.IncPersistenceFailure()
	m.IncLogin(true)

	empty := NewCounterMetrics(nil)
	empty.ObserveClose(model.ClosedShift{}, model.StatusBalanced)
	empty.ObserveRequest(http.MethodGet, http.StatusOK, time.Second)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetGauge().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findMetric(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

func findMetric(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return metric, nil
				}
			}
		}
		return nil, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
	}
	return nil, fmt.Errorf("metric %q not found", name)
}
