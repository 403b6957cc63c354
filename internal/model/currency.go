package model

import (
	"fmt"
	"strings"
)

// Currency задаёт код валюты, с которой работает касса.
type Currency string

const (
	CurrencyDOP Currency = "DOP"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

const (
	// LocalCurrency: валюта, в которой выплачиваются покупки.
	LocalCurrency = CurrencyDOP
	// PrimaryForeignCurrency получает явную сумму при открытии смены.
	PrimaryForeignCurrency = CurrencyUSD
)

// CurrencyInfo содержит справочные данные о валюте.
type CurrencyInfo struct {
	Code          Currency
	Symbol        string
	Denominations []int
	DefaultRate   float64
}

var currencyTable = map[Currency]CurrencyInfo{
	CurrencyDOP: {Code: CurrencyDOP, Symbol: "RD$", DefaultRate: 1},
	CurrencyUSD: {Code: CurrencyUSD, Symbol: "$", Denominations: []int{1, 5, 10, 20, 50, 100}, DefaultRate: 58.50},
	CurrencyEUR: {Code: CurrencyEUR, Symbol: "€", Denominations: []int{5, 10, 20, 50, 100, 200, 500}, DefaultRate: 64.00},
}

var foreignCurrencies = []Currency{CurrencyUSD, CurrencyEUR}

// ForeignCurrencies возвращает валюты, которые касса покупает, в фиксированном порядке.
func ForeignCurrencies() []Currency {
	out := make([]Currency, len(foreignCurrencies))
	copy(out, foreignCurrencies)
	return out
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid сообщает, поддерживается ли валюта.
func (c Currency) IsValid() bool {
	_, ok := currencyTable[c]
	return ok
}

// IsForeign сообщает, является ли валюта покупаемой иностранной валютой.
func (c Currency) IsForeign() bool {
	return c.IsValid() && c != LocalCurrency
}

// Info возвращает справочные данные валюты.
func (c Currency) Info() (CurrencyInfo, bool) {
	info, ok := currencyTable[c]
	return info, ok
}

// Symbol возвращает знак валюты для чеков.
func (c Currency) Symbol() string {
	return currencyTable[c].Symbol
}

// HasDenomination сообщает, принимается ли купюра указанного номинала.
func (c Currency) HasDenomination(denom int) bool {
	for _, d := range currencyTable[c].Denominations {
		if d == denom {
			return true
		}
	}
	return false
}

// ParseCurrency преобразует строку в Currency. Неизвестные коды отклоняются.
func ParseCurrency(value string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return c, nil
}

// Breakdown хранит количество купюр по номиналам.
type Breakdown map[int]int

// Total возвращает сумму купюр в единицах валюты.
func (b Breakdown) Total() float64 {
	var total float64
	for denom, count := range b {
		total += float64(denom) * float64(count)
	}
	return total
}

// Clone возвращает независимую копию.
func (b Breakdown) Clone() Breakdown {
	if b == nil {
		return nil
	}
	out := make(Breakdown, len(b))
	for denom, count := range b {
		out[denom] = count
	}
	return out
}
