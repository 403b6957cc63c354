package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/validation"
)

// Sale содержит входные данные одной покупки валюты.
type Sale struct {
	Currency  model.Currency
	Breakdown model.Breakdown
	Rate      float64
	Cashier   string
}

// SalesLog хранит журнал продаж, только добавление. Последняя запись первая.
type SalesLog struct {
	records []model.SalesRecord
}

// NewSalesLog создаёт журнал из загруженных записей.
func NewSalesLog(records []model.SalesRecord) *SalesLog {
	l := &SalesLog{}
	l.Restore(records)
	return l
}

// Restore заменяет содержимое журнала.
func (l *SalesLog) Restore(records []model.SalesRecord) {
	l.records = make([]model.SalesRecord, 0, len(records))
	for _, r := range records {
		r.Breakdown = r.Breakdown.Clone()
		l.records = append(l.records, r)
	}
}

// All возвращает копию журнала.
func (l *SalesLog) All() []model.SalesRecord {
	out := make([]model.SalesRecord, 0, len(l.records))
	for _, r := range l.records {
		r.Breakdown = r.Breakdown.Clone()
		out = append(out, r)
	}
	return out
}

// ByShift возвращает записи указанной смены.
func (l *SalesLog) ByShift(shiftID string) []model.SalesRecord {
	var out []model.SalesRecord
	for _, r := range l.records {
		if r.ShiftID == shiftID {
			r.Breakdown = r.Breakdown.Clone()
			out = append(out, r)
		}
	}
	return out
}

// Len возвращает количество записей.
func (l *SalesLog) Len() int {
	return len(l.records)
}

func (l *SalesLog) append(r model.SalesRecord) {
	l.records = append([]model.SalesRecord{r}, l.records...)
}

// Recorder проверяет и проводит покупки валюты в открытой смене.
type Recorder struct {
	ledger *Ledger
	sales  *SalesLog
	newID  func() string
}

// NewRecorder создаёт Recorder поверх журнала смен и журнала продаж.
func NewRecorder(ledger *Ledger, sales *SalesLog) *Recorder {
	return &Recorder{ledger: ledger, sales: sales, newID: uuid.NewString}
}

// Process проверяет покупку и проводит её: обновляет итоги смены и добавляет
// запись в журнал продаж. При любой ошибке состояние не меняется.
func (r *Recorder) Process(sale Sale, now time.Time) (model.SalesRecord, error) {
	shift, ok := r.ledger.Current()
	if !ok {
		return model.SalesRecord{}, ErrNoOpenShift
	}

	if !sale.Currency.IsForeign() {
		return model.SalesRecord{}, fmt.Errorf("%w: unsupported currency %q", ErrValidation, sale.Currency)
	}
	if err := validation.ValidateRate(sale.Rate); err != nil {
		return model.SalesRecord{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidateBreakdown(sale.Currency, sale.Breakdown); err != nil {
		return model.SalesRecord{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	amount := sale.Breakdown.Total()
	if amount <= 0 {
		return model.SalesRecord{}, fmt.Errorf("%w: no banknotes registered", ErrValidation)
	}
	localPaid := amount * sale.Rate

	record := model.SalesRecord{
		ID:              r.newID(),
		Date:            now,
		Type:            model.SaleTypeExchange,
		Currency:        sale.Currency,
		Amount:          amount,
		LocalAmountPaid: localPaid,
		Rate:            sale.Rate,
		Breakdown:       sale.Breakdown.Clone(),
		ShiftID:         shift.ID,
		Cashier:         sale.Cashier,
	}

	if _, err := r.ledger.RecordTransaction(sale.Currency, amount, localPaid); err != nil {
		return model.SalesRecord{}, err
	}
	r.sales.append(record)

	out := record
	out.Breakdown = record.Breakdown.Clone()
	return out, nil
}
