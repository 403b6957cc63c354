package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

// Cashier идентифицирует владельца смены.
type Cashier struct {
	ID   string
	Name string
}

// Ledger хранит единственный слот открытой смены и историю закрытых смен.
// Ledger не потокобезопасен: вызывающая сторона сериализует доступ.
type Ledger struct {
	current *model.Shift
	history []model.ClosedShift
	newID   func() string
}

// New создаёт пустой журнал смен.
func New() *Ledger {
	return &Ledger{newID: uuid.NewString}
}

// Restore заменяет состояние журнала загруженными данными.
func (l *Ledger) Restore(current *model.Shift, history []model.ClosedShift) {
	l.current = nil
	if current != nil {
		s := current.Clone()
		ensureMaps(&s)
		l.current = &s
	}
	l.history = make([]model.ClosedShift, 0, len(history))
	for _, c := range history {
		l.history = append(l.history, c.Clone())
	}
}

// Current возвращает копию открытой смены.
func (l *Ledger) Current() (model.Shift, bool) {
	if l.current == nil {
		return model.Shift{}, false
	}
	return l.current.Clone(), true
}

// History возвращает закрытые смены, начиная с последней.
func (l *Ledger) History() []model.ClosedShift {
	out := make([]model.ClosedShift, 0, len(l.history))
	for _, c := range l.history {
		out = append(out, c.Clone())
	}
	return out
}

// Open открывает новую смену для кассира.
//
// Открытая смена без операций молча заменяется (администратор мог пропустить
// открытие и передать кассу кассиру). Смена с операциями не заменяется никогда:
// её нужно сначала закрыть.
func (l *Ledger) Open(owner Cashier, openingLocal, openingForeign float64, now time.Time) (model.Shift, error) {
	if l.current != nil && l.current.Transactions > 0 {
		return model.Shift{}, fmt.Errorf("%w: shift %s of %s has %d transactions",
			ErrConflict, l.current.ID, l.current.UserName, l.current.Transactions)
	}

	shift := model.Shift{
		ID:             l.newID(),
		UserID:         owner.ID,
		UserName:       owner.Name,
		StartTime:      now,
		StartAmount:    openingLocal,
		OpeningForeign: make(map[model.Currency]float64),
		OnHand:         make(map[model.Currency]float64),
	}
	for _, c := range model.ForeignCurrencies() {
		shift.OpeningForeign[c] = 0
		shift.OnHand[c] = 0
	}
	shift.OpeningForeign[model.PrimaryForeignCurrency] = openingForeign
	shift.OnHand[model.PrimaryForeignCurrency] = openingForeign

	l.current = &shift
	return shift.Clone(), nil
}

// DiscardEmpty освобождает слот, если открытая смена не содержит операций.
// Смена с операциями не трогается: возвращается ErrConflict.
func (l *Ledger) DiscardEmpty() error {
	if l.current == nil {
		return nil
	}
	if l.current.Transactions > 0 {
		return fmt.Errorf("%w: shift %s has %d transactions", ErrConflict, l.current.ID, l.current.Transactions)
	}
	l.current = nil
	return nil
}

// RecordTransaction добавляет к итогам смены одну покупку валюты.
// Проверка данных выполняется до вызова (см. Recorder).
func (l *Ledger) RecordTransaction(currency model.Currency, foreignAmount, localAmountPaid float64) (model.Shift, error) {
	if l.current == nil {
		return model.Shift{}, ErrNoOpenShift
	}
	l.current.OnHand[currency] += foreignAmount
	l.current.CurrencyPayouts += localAmountPaid
	l.current.Transactions++
	return l.current.Clone(), nil
}

// Close сверяет кассу, архивирует результат и освобождает слот смены.
func (l *Ledger) Close(countedLocal float64, countedForeign map[model.Currency]float64, now time.Time) (model.ClosedShift, error) {
	if l.current == nil {
		return model.ClosedShift{}, ErrNoOpenShift
	}

	closed := Reconcile(*l.current, countedLocal, countedForeign, now)
	l.history = append([]model.ClosedShift{closed.Clone()}, l.history...)
	l.current = nil
	return closed, nil
}

func ensureMaps(s *model.Shift) {
	if s.OpeningForeign == nil {
		s.OpeningForeign = make(map[model.Currency]float64)
	}
	if s.OnHand == nil {
		s.OnHand = make(map[model.Currency]float64)
	}
}
