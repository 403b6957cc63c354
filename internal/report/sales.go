package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

// DateLayout задаёт формат дат в параметрах периода.
const DateLayout = "2006-01-02"

var csvHeader = []string{"ID", "Fecha", "Moneda", "Monto", "Tasa", "Total DOP", "Ganancia (DOP)", "Cajero"}

// Period задаёт период отчёта по календарным датам, границы включительно.
// Нулевая граница не ограничивает период.
type Period struct {
	From time.Time
	To   time.Time
}

// ParsePeriod разбирает даты в формате 2006-01-02; пустые строки допустимы.
func ParsePeriod(from, to string, loc *time.Location) (Period, error) {
	var p Period
	if from != "" {
		t, err := time.ParseInLocation(DateLayout, from, loc)
		if err != nil {
			return Period{}, fmt.Errorf("invalid from date %q: %w", from, err)
		}
		p.From = t
	}
	if to != "" {
		t, err := time.ParseInLocation(DateLayout, to, loc)
		if err != nil {
			return Period{}, fmt.Errorf("invalid to date %q: %w", to, err)
		}
		p.To = t
	}
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return Period{}, fmt.Errorf("period end %s is before start %s", to, from)
	}
	return p, nil
}

// Contains сообщает, попадает ли момент в период по календарной дате.
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && calendarDate(t, p.From.Location()).Before(p.From) {
		return false
	}
	if !p.To.IsZero() && calendarDate(t, p.To.Location()).After(p.To) {
		return false
	}
	return true
}

func calendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// FilterSales возвращает операции обмена за период в исходном порядке.
func FilterSales(sales []model.SalesRecord, p Period) []model.SalesRecord {
	out := make([]model.SalesRecord, 0, len(sales))
	for _, s := range sales {
		if s.Type != model.SaleTypeExchange {
			continue
		}
		if p.Contains(s.Date) {
			out = append(out, s)
		}
	}
	return out
}

// Summary содержит сводку операций за период.
type Summary struct {
	Transactions  int                        `json:"transactions"`
	ForeignTotals map[model.Currency]float64 `json:"foreignTotals"`
	LocalPaid     float64                    `json:"localPaid"`
	Gain          float64                    `json:"gain"`
}

// Summarize считает итоги по переданным операциям.
func Summarize(sales []model.SalesRecord) Summary {
	s := Summary{ForeignTotals: make(map[model.Currency]float64)}
	for _, c := range model.ForeignCurrencies() {
		s.ForeignTotals[c] = 0
	}
	for _, r := range sales {
		s.Transactions++
		s.ForeignTotals[r.Currency] += r.Amount
		s.LocalPaid += r.LocalAmountPaid
		s.Gain += r.Gain
	}
	return s
}

// WriteCSV выгружает операции в CSV для бухгалтерии.
func WriteCSV(w io.Writer, sales []model.SalesRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, s := range sales {
		row := []string{
			s.ID,
			s.Date.Format("2006-01-02 15:04:05"),
			string(s.Currency),
			strconv.FormatFloat(s.Amount, 'f', -1, 64),
			strconv.FormatFloat(s.Rate, 'f', -1, 64),
			Amount(s.LocalAmountPaid),
			Amount(s.Gain),
			s.Cashier,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", s.ID, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
