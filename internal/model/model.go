// Package model содержит доменные сущности пункта обмена валют.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mmeshcher/exchange-counter/internal/credential"
)

// Role описывает роль пользователя кассы.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleCurrencyAgent Role = "currency_agent"
	RoleCashier       Role = "cashier"
	RoleWarehouse     Role = "warehouse"
)

var validRoles = []Role{
	RoleAdmin,
	RoleCurrencyAgent,
	RoleCashier,
	RoleWarehouse,
}

// IsValid сообщает, входит ли роль в известный набор.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

var exchangeRoles = []Role{RoleAdmin, RoleCurrencyAgent, RoleCashier}

// ExchangeRoles возвращает роли, которым разрешена покупка валюты.
func ExchangeRoles() []Role {
	return append([]Role(nil), exchangeRoles...)
}

// CanExchange сообщает, может ли роль проводить покупку валюты.
func (r Role) CanExchange() bool {
	for _, candidate := range exchangeRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRole преобразует строку в Role.
func ParseRole(value string) (Role, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// User представляет пользователя кассы.
type User struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Credential credential.Credential `json:"credential"`
	Role       Role                  `json:"role"`
}

// UnmarshalJSON читает как текущий формат, так и старый: числовой id и поле pin.
func (u *User) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         json.RawMessage        `json:"id"`
		Name       string                 `json:"name"`
		Credential *credential.Credential `json:"credential"`
		Pin        *credential.Credential `json:"pin"`
		Role       Role                   `json:"role"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := decodeID(raw.ID)
	if err != nil {
		return err
	}

	*u = User{ID: id, Name: raw.Name, Role: raw.Role}
	switch {
	case raw.Credential != nil:
		u.Credential = *raw.Credential
	case raw.Pin != nil:
		u.Credential = *raw.Pin
	}
	return nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", err
		}
		return id, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid user id: %w", err)
	}
	return n.String(), nil
}

// Session описывает текущую сессию единственного активного пользователя.
type Session struct {
	UserID    string    `json:"userId"`
	UserName  string    `json:"userName"`
	Role      Role      `json:"role"`
	StartedAt time.Time `json:"startedAt"`
}

// IsAdmin сообщает, открыта ли сессия администратором.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}
