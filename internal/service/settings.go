package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/validation"
)

// Settings возвращает настройки пункта обмена.
func (s *Service) Settings() model.StoreSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.settings.Clone()
}

// UpdateSettings заменяет настройки. Курсы, которых нет в запросе, сохраняются.
func (s *Service) UpdateSettings(ctx context.Context, in model.StoreSettings) (model.StoreSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return model.StoreSettings{}, err
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return model.StoreSettings{}, fmt.Errorf("%w: store name is required", ledger.ErrValidation)
	}

	rates := make(map[model.Currency]float64, len(s.settings.Rates))
	for c, r := range s.settings.Rates {
		rates[c] = r
	}
	for c, r := range in.Rates {
		if !c.IsForeign() {
			return model.StoreSettings{}, fmt.Errorf("%w: unsupported currency %q", ledger.ErrValidation, c)
		}
		if err := validation.ValidateRate(r); err != nil {
			return model.StoreSettings{}, fmt.Errorf("%w: %s: %w", ledger.ErrValidation, c, err)
		}
		rates[c] = r
	}
	in.Rates = rates

	s.settings = in.Clone()
	s.logger.Info("settings updated", zap.Any("rates", rates))

	if err := s.persist(ctx); err != nil {
		return s.settings.Clone(), err
	}
	return s.settings.Clone(), nil
}
