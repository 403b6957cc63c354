// Package service реализует бизнес-логику кассы обмена валют.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/credential"
	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/metrics"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неудачном входе. Не различает «нет пользователя» и «неверный PIN».
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession возвращается, если операция требует активной сессии.
	ErrNoSession = errors.New("no active session")
	// ErrForbidden возвращается, если роли пользователя недостаточно.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound возвращается, если запрошенный объект не найден.
	ErrNotFound = errors.New("not found")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	LoadSession(ctx context.Context) (*model.Session, error)
	LoadShift(ctx context.Context) (*model.Shift, error)
	LoadSettings(ctx context.Context) (model.StoreSettings, error)
	LoadUsers(ctx context.Context) ([]model.User, error)
	LoadShiftHistory(ctx context.Context) ([]model.ClosedShift, error)
	LoadSalesHistory(ctx context.Context) ([]model.SalesRecord, error)
	SaveState(ctx context.Context, state repository.State) error
	Replace(ctx context.Context, state repository.State) error
}

// Hasher создаёт хеш PIN при записи пользователя.
type Hasher interface {
	Hash(secret string) (credential.Credential, error)
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт логгер сервиса.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics задаёт сборщик метрик.
func WithMetrics(m *metrics.CounterMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service держит состояние кассы в памяти и сохраняет его целиком после каждого изменения.
// Все операции сериализуются одним мьютексом.
type Service struct {
	repo    Repository
	hasher  Hasher
	logger  *zap.Logger
	metrics *metrics.CounterMetrics
	now     func() time.Time

	mu       sync.Mutex
	session  *model.Session
	ledger   *ledger.Ledger
	sales    *ledger.SalesLog
	recorder *ledger.Recorder
	users    []model.User
	settings model.StoreSettings

	// pendingReceipt: id закрытой смены, чей отчёт ещё не выдан без сессии.
	pendingReceipt string
}

// NewService создаёт сервис с пустым состоянием; данные загружаются через Load.
func NewService(repo Repository, hasher Hasher, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		logger:   zap.NewNop(),
		now:      time.Now,
		ledger:   ledger.New(),
		sales:    ledger.NewSalesLog(nil),
		settings: model.DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.recorder = ledger.NewRecorder(s.ledger, s.sales)
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Load читает всё состояние из хранилища. Отсутствующие документы заменяются
// значениями по умолчанию, повреждённые пропускаются с предупреждением.
// При первом запуске создаются пользователи по умолчанию.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.repo.LoadSettings(ctx)
	if err := s.tolerate(repository.KeySettings, err); err != nil {
		return err
	}
	if err != nil {
		settings = model.DefaultSettings()
	}

	users, err := s.repo.LoadUsers(ctx)
	if err := s.tolerate(repository.KeyUsers, err); err != nil {
		return err
	}
	seeded := false
	if err != nil {
		if users, err = s.defaultUsers(); err != nil {
			return err
		}
		seeded = true
	}

	history, err := s.repo.LoadShiftHistory(ctx)
	if err := s.tolerate(repository.KeyShiftHistory, err); err != nil {
		return err
	}

	sales, err := s.repo.LoadSalesHistory(ctx)
	if err := s.tolerate(repository.KeySalesHistory, err); err != nil {
		return err
	}

	shift, err := s.repo.LoadShift(ctx)
	if err := s.tolerate(repository.KeyShift, err); err != nil {
		return err
	}

	session, err := s.repo.LoadSession(ctx)
	if err := s.tolerate(repository.KeySession, err); err != nil {
		return err
	}
	if session != nil && findUser(users, session.UserID) < 0 {
		s.logger.Warn("dropping session of unknown user", zap.String("user_id", session.UserID))
		session = nil
	}

	s.settings = settings
	s.users = users
	s.session = session
	s.ledger.Restore(shift, history)
	s.sales.Restore(sales)

	s.logger.Info("state loaded",
		zap.Int("users", len(users)),
		zap.Int("closed_shifts", len(history)),
		zap.Int("sales", len(sales)),
		zap.Bool("shift_open", shift != nil),
		zap.Bool("session_active", session != nil),
	)

	if seeded {
		s.logger.Info("seeded default users")
		return s.persist(ctx)
	}
	return nil
}

// tolerate пропускает отсутствующие и повреждённые документы; остальные ошибки возвращает.
func (s *Service) tolerate(key string, err error) error {
	switch {
	case err == nil, errors.Is(err, repository.ErrNotFound):
		return nil
	case errors.Is(err, repository.ErrCorruptDocument):
		s.logger.Warn("ignoring corrupt document", zap.String("key", key), zap.Error(err))
		return nil
	default:
		return fmt.Errorf("load %s: %w", key, err)
	}
}

func (s *Service) defaultUsers() ([]model.User, error) {
	defaults := []struct {
		id, name, pin string
		role          model.Role
	}{
		{"1", "Admin General", "1234", model.RoleAdmin},
		{"2", "Agente Divisas", "0000", model.RoleCurrencyAgent},
	}

	users := make([]model.User, 0, len(defaults))
	for _, d := range defaults {
		cred, err := s.hasher.Hash(d.pin)
		if err != nil {
			return nil, fmt.Errorf("hash default pin: %w", err)
		}
		users = append(users, model.User{ID: d.id, Name: d.name, Credential: cred, Role: d.role})
	}
	return users, nil
}

// snapshot собирает полное состояние для записи. Вызывается под s.mu.
func (s *Service) snapshot() repository.State {
	state := repository.State{
		Settings:     s.settings.Clone(),
		Users:        append([]model.User(nil), s.users...),
		ShiftHistory: s.ledger.History(),
		SalesHistory: s.sales.All(),
	}
	if s.session != nil {
		session := *s.session
		state.Session = &session
	}
	if shift, ok := s.ledger.Current(); ok {
		state.Shift = &shift
	}
	return state
}

// persist сохраняет состояние. При ошибке состояние в памяти остаётся актуальным.
func (s *Service) persist(ctx context.Context) error {
	if err := s.repo.SaveState(ctx, s.snapshot()); err != nil {
		s.metrics.IncPersistenceFailure()
		s.logger.Error("failed to persist state", zap.Error(err), zap.Bool("transient", repository.IsTransient(err)))
		if !errors.Is(err, repository.ErrPersistence) {
			err = fmt.Errorf("%w: %w", repository.ErrPersistence, err)
		}
		return err
	}
	return nil
}

func (s *Service) requireSession() (model.Session, error) {
	if s.session == nil {
		return model.Session{}, ErrNoSession
	}
	return *s.session, nil
}

func (s *Service) requireAdmin() (model.Session, error) {
	session, err := s.requireSession()
	if err != nil {
		return model.Session{}, err
	}
	if !session.IsAdmin() {
		return model.Session{}, ErrForbidden
	}
	return session, nil
}

func findUser(users []model.User, id string) int {
	for i, u := range users {
		if u.ID == id {
			return i
		}
	}
	return -1
}
