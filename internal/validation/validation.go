// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"unicode"

	"go.uber.org/multierr"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

const (
	minPINLength = 4
	maxPINLength = 12
)

var (
	ErrUnknownDenomination = errors.New("unknown denomination")
	ErrNegativeCount       = errors.New("negative banknote count")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// IsValidPIN проверяет PIN: от 4 до 12 цифр, как на цифровой клавиатуре входа.
func IsValidPIN(pin string) bool {
	if len(pin) < minPINLength || len(pin) > maxPINLength {
		return false
	}

	for _, ch := range pin {
		if ch > unicode.MaxASCII || !unicode.IsDigit(ch) {
			return false
		}
	}

	return true
}

// ValidateBreakdown проверяет разбивку по купюрам: каждый номинал должен
// существовать для валюты, каждое количество неотрицательно.
// Возвращает все найденные ошибки сразу.
func ValidateBreakdown(currency model.Currency, breakdown model.Breakdown) error {
	denoms := make([]int, 0, len(breakdown))
	for denom := range breakdown {
		denoms = append(denoms, denom)
	}
	sort.Ints(denoms)

	var err error
	for _, denom := range denoms {
		if !currency.HasDenomination(denom) {
			err = multierr.Append(err, fmt.Errorf("%w: %s %d", ErrUnknownDenomination, currency, denom))
		}
		if count := breakdown[denom]; count < 0 {
			err = multierr.Append(err, fmt.Errorf("%w: %s %d x %d", ErrNegativeCount, currency, denom, count))
		}
	}

	return err
}

// ValidateAmount проверяет денежную сумму, введённую кассиром: конечное неотрицательное число.
func ValidateAmount(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidAmount, field)
	}
	return nil
}

// ValidateFinite проверяет, что сумма конечна. Знак не важен: пересчёт кассы
// может быть отрицательным, если выплаты превысили размен.
func ValidateFinite(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrInvalidAmount, field)
	}
	return nil
}

// ValidateRate проверяет курс обмена: конечное положительное число.
func ValidateRate(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return fmt.Errorf("%w: rate must be positive", ErrInvalidAmount)
	}
	return nil
}
