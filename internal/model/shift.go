package model

import "time"

// Shift описывает открытую кассовую смену и её накопительные итоги.
type Shift struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	UserName        string               `json:"userName"`
	StartTime       time.Time            `json:"startTime"`
	StartAmount     float64              `json:"startAmount"`
	OpeningForeign  map[Currency]float64 `json:"openingForeign"`
	OnHand          map[Currency]float64 `json:"perCurrencyOnHand"`
	CurrencyPayouts float64              `json:"currencyPayouts"`
	Transactions    int                  `json:"transactions"`
}

// Clone возвращает копию смены с независимыми картами.
func (s Shift) Clone() Shift {
	s.OpeningForeign = cloneAmounts(s.OpeningForeign)
	s.OnHand = cloneAmounts(s.OnHand)
	return s
}

// ReconciliationStatus описывает производный статус расхождения.
type ReconciliationStatus string

const (
	StatusBalanced ReconciliationStatus = "balanced"
	StatusOverage  ReconciliationStatus = "overage"
	StatusShortage ReconciliationStatus = "shortage"
)

// ClosedShift хранит неизменяемый итог закрытой смены.
type ClosedShift struct {
	Shift
	EndTime               time.Time            `json:"endTime"`
	FinalAmount           float64              `json:"finalAmount"`
	PerCurrencyFinal      map[Currency]float64 `json:"perCurrencyFinalAmount"`
	ExpectedAmount        float64              `json:"expectedAmount"`
	PerCurrencyExpected   map[Currency]float64 `json:"perCurrencyExpected"`
	Difference            float64              `json:"difference"`
	PerCurrencyDifference map[Currency]float64 `json:"perCurrencyDifference"`
}

// Clone возвращает копию закрытой смены с независимыми картами.
func (c ClosedShift) Clone() ClosedShift {
	c.Shift = c.Shift.Clone()
	c.PerCurrencyFinal = cloneAmounts(c.PerCurrencyFinal)
	c.PerCurrencyExpected = cloneAmounts(c.PerCurrencyExpected)
	c.PerCurrencyDifference = cloneAmounts(c.PerCurrencyDifference)
	return c
}

func cloneAmounts(in map[Currency]float64) map[Currency]float64 {
	if in == nil {
		return nil
	}
	out := make(map[Currency]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
