// Package metrics экспортирует метрики работы кассы в Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

// CounterMetrics собирает метрики кассы. Нулевое значение и nil безопасны.
type CounterMetrics struct {
	sales        *prometheus.CounterVec
	foreignTotal *prometheus.CounterVec
	localPaid    prometheus.Counter
	shiftsOpened prometheus.Counter
	shiftsClosed *prometheus.CounterVec
	difference   *prometheus.GaugeVec
	logins       *prometheus.CounterVec
	persistFails prometheus.Counter
	httpDuration *prometheus.HistogramVec
}

// NewCounterMetrics регистрирует метрики в переданном registerer.
func NewCounterMetrics(reg prometheus.Registerer) *CounterMetrics {
	if reg == nil {
		return &CounterMetrics{}
	}
	m := &CounterMetrics{
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_sales_total",
			Help: "Recorded currency purchases.",
		}, []string{"currency"}),
		foreignTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_foreign_received_total",
			Help: "Foreign currency received from customers.",
		}, []string{"currency"}),
		localPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_local_paid_total",
			Help: "Local currency paid out for purchases.",
		}),
		shiftsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_shifts_opened_total",
			Help: "Opened cash-drawer shifts.",
		}),
		shiftsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_shifts_closed_total",
			Help: "Closed shifts by local-currency reconciliation status.",
		}, []string{"status"}),
		difference: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_last_close_difference",
			Help: "Difference between counted and expected amounts at the last close.",
		}, []string{"currency"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		persistFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_persistence_failures_total",
			Help: "Failed writes to the document store.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "exchange_http_request_duration_seconds",
			Help:    "Duration of API requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.sales, m.foreignTotal, m.localPaid,
		m.shiftsOpened, m.shiftsClosed, m.difference,
		m.logins, m.persistFails, m.httpDuration,
	)
	return m
}

// ObserveSale учитывает проведённую покупку.
func (m *CounterMetrics) ObserveSale(record model.SalesRecord) {
	if m == nil || m.sales == nil {
		return
	}
	c := normalizeLabel(string(record.Currency))
	m.sales.WithLabelValues(c).Inc()
	m.foreignTotal.WithLabelValues(c).Add(record.Amount)
	m.localPaid.Add(record.LocalAmountPaid)
}

// IncShiftOpened учитывает открытие смены.
func (m *CounterMetrics) IncShiftOpened() {
	if m == nil || m.shiftsOpened == nil {
		return
	}
	m.shiftsOpened.Inc()
}

// ObserveClose учитывает закрытие смены и её расхождения.
func (m *CounterMetrics) ObserveClose(closed model.ClosedShift, status model.ReconciliationStatus) {
	if m == nil || m.shiftsClosed == nil {
		return
	}
	m.shiftsClosed.WithLabelValues(normalizeLabel(string(status))).Inc()
	m.difference.WithLabelValues(string(model.LocalCurrency)).Set(closed.Difference)
	for c, diff := range closed.PerCurrencyDifference {
		m.difference.WithLabelValues(normalizeLabel(string(c))).Set(diff)
	}
}

// IncLogin учитывает попытку входа.
func (m *CounterMetrics) IncLogin(success bool) {
	if m == nil || m.logins == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.logins.WithLabelValues(result).Inc()
}

// IncPersistenceFailure учитывает неудачную запись в хранилище.
func (m *CounterMetrics) IncPersistenceFailure() {
	if m == nil || m.persistFails == nil {
		return
	}
	m.persistFails.Inc()
}

// ObserveRequest учитывает длительность HTTP-запроса.
func (m *CounterMetrics) ObserveRequest(method string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	m.httpDuration.WithLabelValues(normalizeLabel(method), strconv.Itoa(status)).Observe(duration.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
