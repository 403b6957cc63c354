package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/credential"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/validation"
)

// LoginResult содержит результат успешного входа.
type LoginResult struct {
	Session model.Session `json:"session"`
	// ShiftRequired: нужно открыть смену, так как открытой нет или она принадлежит другому кассиру.
	ShiftRequired bool         `json:"shiftRequired"`
	Shift         *model.Shift `json:"shift,omitempty"`
}

// Login ищет пользователя по PIN и открывает сессию. Побеждает первое совпадение.
//
// Пустая смена другого кассира при входе отбрасывается. Открытые PIN
// перехешируются после успешной проверки.
func (s *Service) Login(ctx context.Context, pin string) (LoginResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	if validation.IsValidPIN(pin) {
		idx = s.matchUser(pin)
	}
	if idx < 0 {
		s.metrics.IncLogin(false)
		return LoginResult{}, ErrInvalidCredentials
	}
	s.metrics.IncLogin(true)

	user := s.users[idx]
	if user.Credential.Kind == credential.KindPlain {
		if cred, err := s.hasher.Hash(pin); err != nil {
			s.logger.Warn("failed to upgrade plain pin", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			s.users[idx].Credential = cred
		}
	}

	session := model.Session{
		UserID:    user.ID,
		UserName:  user.Name,
		Role:      user.Role,
		StartedAt: s.now(),
	}
	s.session = &session

	if shift, ok := s.ledger.Current(); ok && shift.UserID != user.ID && shift.Transactions == 0 {
		if err := s.ledger.DiscardEmpty(); err == nil {
			s.logger.Info("discarded empty shift of another cashier",
				zap.String("shift_id", shift.ID), zap.String("owner", shift.UserName))
		}
	}

	result := LoginResult{Session: session, ShiftRequired: true}
	if shift, ok := s.ledger.Current(); ok {
		result.Shift = &shift
		result.ShiftRequired = shift.UserID != user.ID
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))

	if err := s.persist(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// matchUser возвращает индекс первого пользователя с совпавшим PIN или -1.
func (s *Service) matchUser(pin string) int {
	for i, u := range s.users {
		ok, err := credential.Verify(pin, u.Credential)
		if err != nil {
			if errors.Is(err, credential.ErrMalformedCredential) {
				s.logger.Warn("malformed stored credential", zap.String("user_id", u.ID))
			}
			continue
		}
		if ok {
			return i
		}
	}
	return -1
}

// Logout завершает сессию. Открытая смена остаётся открытой.
func (s *Service) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil
	}
	s.logger.Info("user logged out", zap.String("user_id", s.session.UserID))
	s.session = nil
	return s.persist(ctx)
}

// CurrentSession возвращает активную сессию.
func (s *Service) CurrentSession() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return model.Session{}, false
	}
	return *s.session, true
}

// Authorize проверяет, что сессия с указанным пользователем всё ещё активна,
// и при необходимости проверяет роль администратора.
func (s *Service) Authorize(userID string, adminOnly bool) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil || s.session.UserID != userID {
		return model.Session{}, ErrNoSession
	}
	if adminOnly && !s.session.IsAdmin() {
		return model.Session{}, fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return *s.session, nil
}
