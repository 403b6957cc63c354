// Package repository хранит состояние кассы в виде JSON-документов: SQLite по умолчанию, PostgreSQL опционально.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmeshcher/exchange-counter/internal/model"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Ключи документов.
const (
	KeySession      = "session"
	KeyShift        = "shift"
	KeySettings     = "settings"
	KeyUsers        = "users"
	KeyShiftHistory = "shift_history"
	KeySalesHistory = "sales_history"
)

var (
	// ErrNotFound возвращается, если документ ещё ни разу не сохранялся.
	ErrNotFound = errors.New("document not found")
	// ErrPersistence возвращается при ошибке чтения или записи хранилища.
	ErrPersistence = errors.New("persistence failure")
	// ErrCorruptDocument возвращается, если сохранённый документ не удаётся разобрать.
	ErrCorruptDocument = errors.New("corrupt document")
)

// State содержит полный снимок состояния кассы. Сохраняется целиком.
type State struct {
	Session      *model.Session
	Shift        *model.Shift
	Settings     model.StoreSettings
	Users        []model.User
	ShiftHistory []model.ClosedShift
	SalesHistory []model.SalesRecord
}

// document описывает одну запись хранилища; nil Value означает удаление ключа.
type document struct {
	Key   string
	Value []byte
}

type kvStore interface {
	get(ctx context.Context, key string) ([]byte, error)
	putAll(ctx context.Context, docs []document) error
}

// documents реализует типизированный доступ поверх конкретного хранилища.
type documents struct {
	kv kvStore
}

// LoadSession возвращает сохранённую сессию.
func (d documents) LoadSession(ctx context.Context) (*model.Session, error) {
	var s model.Session
	if err := d.load(ctx, KeySession, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadShift возвращает открытую смену.
func (d documents) LoadShift(ctx context.Context) (*model.Shift, error) {
	var s model.Shift
	if err := d.load(ctx, KeyShift, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSettings возвращает настройки, дополненные значениями по умолчанию.
func (d documents) LoadSettings(ctx context.Context) (model.StoreSettings, error) {
	settings := model.DefaultSettings()
	if err := d.load(ctx, KeySettings, &settings); err != nil {
		return model.StoreSettings{}, err
	}
	return settings, nil
}

// LoadUsers возвращает пользователей. Устаревшие строковые PIN мигрируют при разборе.
func (d documents) LoadUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := d.load(ctx, KeyUsers, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// LoadShiftHistory возвращает закрытые смены.
func (d documents) LoadShiftHistory(ctx context.Context) ([]model.ClosedShift, error) {
	history := []model.ClosedShift{}
	if err := d.load(ctx, KeyShiftHistory, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// LoadSalesHistory возвращает журнал продаж.
func (d documents) LoadSalesHistory(ctx context.Context) ([]model.SalesRecord, error) {
	sales := []model.SalesRecord{}
	if err := d.load(ctx, KeySalesHistory, &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// SaveState записывает все документы в одной транзакции.
func (d documents) SaveState(ctx context.Context, state State) error {
	docs, err := encodeState(state)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if err := d.kv.putAll(ctx, docs); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// Replace заменяет сохранённое состояние целиком; используется при восстановлении из копии.
func (d documents) Replace(ctx context.Context, state State) error {
	return d.SaveState(ctx, state)
}

func (d documents) load(ctx context.Context, key string, dst any) error {
	raw, err := d.kv.get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: load %s: %w", ErrPersistence, key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCorruptDocument, key, err)
	}
	return nil
}

func encodeState(state State) ([]document, error) {
	docs := make([]document, 0, 6)

	add := func(key string, v any, present bool) error {
		if !present {
			docs = append(docs, document{Key: key})
			return nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		docs = append(docs, document{Key: key, Value: raw})
		return nil
	}

	if err := add(KeySession, state.Session, state.Session != nil); err != nil {
		return nil, err
	}
	if err := add(KeyShift, state.Shift, state.Shift != nil); err != nil {
		return nil, err
	}
	if err := add(KeySettings, state.Settings, true); err != nil {
		return nil, err
	}
	if err := add(KeyUsers, nonNil(state.Users), true); err != nil {
		return nil, err
	}
	if err := add(KeyShiftHistory, nonNil(state.ShiftHistory), true); err != nil {
		return nil, err
	}
	if err := add(KeySalesHistory, nonNil(state.SalesHistory), true); err != nil {
		return nil, err
	}

	return docs, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
