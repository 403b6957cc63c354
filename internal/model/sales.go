package model

import "time"

// SaleTypeExchange обозначает единственный тип операции кассы, покупку валюты.
const SaleTypeExchange = "exchange"

// SalesRecord описывает запись журнала продаж. После создания не изменяется.
type SalesRecord struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	Type            string    `json:"type"`
	Currency        Currency  `json:"currency"`
	Amount          float64   `json:"amount"`
	LocalAmountPaid float64   `json:"dopAmount"`
	Rate            float64   `json:"rate"`
	Breakdown       Breakdown `json:"breakdown"`
	ShiftID         string    `json:"shiftId"`
	Cashier         string    `json:"cashier"`
	Gain            float64   `json:"gain"`
}

// StoreSettings содержит реквизиты пункта обмена и текущие курсы.
type StoreSettings struct {
	Name           string               `json:"name"`
	TaxID          string               `json:"taxId"`
	Phone          string               `json:"phone"`
	Address        string               `json:"address"`
	ReceiptMessage string               `json:"receiptMessage"`
	Rates          map[Currency]float64 `json:"rates"`
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() StoreSettings {
	rates := make(map[Currency]float64, len(foreignCurrencies))
	for _, c := range foreignCurrencies {
		rates[c] = currencyTable[c].DefaultRate
	}
	return StoreSettings{
		Name:           "CASA DE CAMBIO",
		TaxID:          "000-0000000-0",
		Phone:          "(809) 000-0000",
		Address:        "Calle Principal #123",
		ReceiptMessage: "¡Gracias por su preferencia!",
		Rates:          rates,
	}
}

// Rate возвращает курс валюты или курс по умолчанию, если он не настроен.
func (s StoreSettings) Rate(c Currency) float64 {
	if r, ok := s.Rates[c]; ok && r > 0 {
		return r
	}
	return currencyTable[c].DefaultRate
}

// Clone возвращает копию настроек.
func (s StoreSettings) Clone() StoreSettings {
	s.Rates = cloneAmounts(s.Rates)
	return s
}

// BackupVersion задаёт версию формата резервной копии.
const BackupVersion = "2.0"

// Backup описывает документ резервной копии. При восстановлении заменяет данные целиком.
type Backup struct {
	Timestamp    time.Time      `json:"timestamp"`
	Version      string         `json:"version"`
	Settings     *StoreSettings `json:"settings"`
	Users        []User         `json:"users"`
	ShiftHistory []ClosedShift  `json:"shiftHistory"`
	SalesHistory []SalesRecord  `json:"salesHistory"`
}
