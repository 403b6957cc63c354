// Package report строит отчёты кассы: выгрузку CSV, сводку за период и чеки.
package report

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

// Amount округляет сумму до двух знаков для отображения.
// Хранимые значения не округляются.
func Amount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Money форматирует сумму со знаком валюты, например «RD$5,850.00».
func Money(v float64, c model.Currency) string {
	cur := money.GetCurrency(string(c))
	if cur == nil {
		return Amount(v) + " " + string(c)
	}

	factor := decimal.New(1, int32(cur.Fraction))
	minor := decimal.NewFromFloat(v).Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

// SignedMoney форматирует сумму с явным знаком «+» для положительных значений.
func SignedMoney(v float64, c model.Currency) string {
	if decimal.NewFromFloat(v).Round(2).IsPositive() {
		return "+" + Money(v, c)
	}
	return Money(v, c)
}
