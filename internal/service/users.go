package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/credential"
	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/validation"
)

// UserView описывает пользователя без учётных данных.
type UserView struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Role model.Role `json:"role"`
}

func viewOf(u model.User) UserView {
	return UserView{ID: u.ID, Name: u.Name, Role: u.Role}
}

// ListUsers возвращает пользователей кассы.
func (s *Service) ListUsers() ([]UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}

	out := make([]UserView, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, viewOf(u))
	}
	return out, nil
}

// CreateUser добавляет пользователя. PIN хешируется при записи.
func (s *Service) CreateUser(ctx context.Context, name, pin string, role model.Role) (UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return UserView{}, err
	}

	name = strings.TrimSpace(name)
	if err := s.validateUser(name, role); err != nil {
		return UserView{}, err
	}
	cred, err := s.newCredential(pin, "")
	if err != nil {
		return UserView{}, err
	}

	user := model.User{ID: uuid.NewString(), Name: name, Credential: cred, Role: role}
	s.users = append(s.users, user)
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))

	if err := s.persist(ctx); err != nil {
		return viewOf(user), err
	}
	return viewOf(user), nil
}

// UpdateUser меняет имя, роль и, если pin не nil, PIN пользователя.
func (s *Service) UpdateUser(ctx context.Context, id, name string, pin *string, role model.Role) (UserView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return UserView{}, err
	}

	idx := findUser(s.users, id)
	if idx < 0 {
		return UserView{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}

	name = strings.TrimSpace(name)
	if err := s.validateUser(name, role); err != nil {
		return UserView{}, err
	}
	if s.users[idx].Role == model.RoleAdmin && role != model.RoleAdmin && s.countAdmins() == 1 {
		return UserView{}, fmt.Errorf("%w: cannot demote the last admin", ledger.ErrValidation)
	}

	user := s.users[idx]
	if pin != nil {
		cred, err := s.newCredential(*pin, id)
		if err != nil {
			return UserView{}, err
		}
		user.Credential = cred
	}
	user.Name = name
	user.Role = role
	s.users[idx] = user

	if s.session != nil && s.session.UserID == id {
		s.session.UserName = name
		s.session.Role = role
	}
	s.logger.Info("user updated", zap.String("user_id", id))

	if err := s.persist(ctx); err != nil {
		return viewOf(user), err
	}
	return viewOf(user), nil
}

// DeleteUser удаляет пользователя. Нельзя удалить последнего пользователя,
// последнего администратора и пользователя активной сессии.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireAdmin()
	if err != nil {
		return err
	}

	idx := findUser(s.users, id)
	if idx < 0 {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	switch {
	case len(s.users) == 1:
		return fmt.Errorf("%w: cannot delete the last user", ledger.ErrValidation)
	case session.UserID == id:
		return fmt.Errorf("%w: cannot delete the active user", ledger.ErrValidation)
	case s.users[idx].Role == model.RoleAdmin && s.countAdmins() == 1:
		return fmt.Errorf("%w: cannot delete the last admin", ledger.ErrValidation)
	}

	s.users = append(s.users[:idx:idx], s.users[idx+1:]...)
	s.logger.Info("user deleted", zap.String("user_id", id))

	return s.persist(ctx)
}

func (s *Service) validateUser(name string, role model.Role) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ledger.ErrValidation)
	}
	if !role.IsValid() {
		return fmt.Errorf("%w: invalid role %q", ledger.ErrValidation, role)
	}
	return nil
}

// newCredential проверяет формат PIN и его уникальность среди других пользователей.
// Вход выбирает первое совпадение, поэтому повторяющийся PIN недопустим.
func (s *Service) newCredential(pin, ownerID string) (credential.Credential, error) {
	if !validation.IsValidPIN(pin) {
		return credential.Credential{}, fmt.Errorf("%w: pin must be 4-12 digits", ledger.ErrValidation)
	}
	for _, u := range s.users {
		if u.ID == ownerID {
			continue
		}
		if ok, _ := credential.Verify(pin, u.Credential); ok {
			return credential.Credential{}, fmt.Errorf("%w: pin already in use", ledger.ErrConflict)
		}
	}

	cred, err := s.hasher.Hash(pin)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("hash pin: %w", err)
	}
	return cred, nil
}

func (s *Service) countAdmins() int {
	n := 0
	for _, u := range s.users {
		if u.Role == model.RoleAdmin {
			n++
		}
	}
	return n
}
