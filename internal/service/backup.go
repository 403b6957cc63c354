package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/repository"
)

// Backup возвращает резервную копию настроек, пользователей и истории.
func (s *Service) Backup() (model.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return model.Backup{}, err
	}

	settings := s.settings.Clone()
	return model.Backup{
		Timestamp:    s.now(),
		Version:      model.BackupVersion,
		Settings:     &settings,
		Users:        append([]model.User(nil), s.users...),
		ShiftHistory: s.ledger.History(),
		SalesHistory: s.sales.All(),
	}, nil
}

// Restore заменяет данные содержимым резервной копии. Настройки и пользователи
// обязательны; отсутствующая история оставляет текущую без изменений.
// Пустая открытая смена сохраняется; при смене с операциями восстановление запрещено.
func (s *Service) Restore(ctx context.Context, b model.Backup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return err
	}
	if current, open := s.ledger.Current(); open && current.Transactions > 0 {
		return fmt.Errorf("%w: close shift %s before restoring a backup", ledger.ErrConflict, current.ID)
	}
	if b.Settings == nil || b.Users == nil {
		return fmt.Errorf("%w: backup must contain settings and users", ledger.ErrValidation)
	}
	for _, u := range b.Users {
		if u.ID == "" || !u.Role.IsValid() {
			return fmt.Errorf("%w: backup contains invalid user %q", ledger.ErrValidation, u.Name)
		}
	}

	settings := model.DefaultSettings()
	settings.Name = b.Settings.Name
	settings.TaxID = b.Settings.TaxID
	settings.Phone = b.Settings.Phone
	settings.Address = b.Settings.Address
	settings.ReceiptMessage = b.Settings.ReceiptMessage
	for c, r := range b.Settings.Rates {
		if c.IsForeign() && r > 0 {
			settings.Rates[c] = r
		}
	}

	history := s.ledger.History()
	if b.ShiftHistory != nil {
		history = b.ShiftHistory
	}
	sales := s.sales.All()
	if b.SalesHistory != nil {
		sales = b.SalesHistory
	}
	current, open := s.ledger.Current()

	s.settings = settings
	s.users = append([]model.User(nil), b.Users...)
	if open {
		s.ledger.Restore(&current, history)
	} else {
		s.ledger.Restore(nil, history)
	}
	s.sales.Restore(sales)
	if s.session != nil && findUser(s.users, s.session.UserID) < 0 {
		s.session = nil
	}

	s.logger.Info("backup restored",
		zap.String("version", b.Version),
		zap.Time("backup_time", b.Timestamp),
		zap.Int("users", len(b.Users)),
	)

	if err := s.repo.Replace(ctx, s.snapshot()); err != nil {
		s.metrics.IncPersistenceFailure()
		s.logger.Error("failed to persist restored state", zap.Error(err))
		if !errors.Is(err, repository.ErrPersistence) {
			err = fmt.Errorf("%w: %w", repository.ErrPersistence, err)
		}
		return err
	}
	return nil
}
