// Package ledger реализует кассовую смену: открытие, учёт покупок валюты и сверку при закрытии.
package ledger

import "errors"

var (
	// ErrValidation возвращается при некорректных входных данных; состояние не меняется.
	ErrValidation = errors.New("validation failed")
	// ErrConflict возвращается при попытке открыть смену поверх смены с операциями.
	ErrConflict = errors.New("shift conflict")
	// ErrNoOpenShift возвращается, если операция требует открытой смены.
	ErrNoOpenShift = errors.New("no open shift")
)
