// Package handler содержит HTTP-обработчики API кассы обмена валют.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/metrics"
	"github.com/mmeshcher/exchange-counter/internal/middleware"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/report"
	"github.com/mmeshcher/exchange-counter/internal/repository"
	"github.com/mmeshcher/exchange-counter/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, pin string) (service.LoginResult, error)
	Logout(ctx context.Context) error
	Authorize(userID string, adminOnly bool) (model.Session, error)

	CurrentShift() (model.Shift, bool)
	OpenShift(ctx context.Context, startAmount, foreignAmount float64) (model.Shift, error)
	RecordSale(ctx context.Context, currency model.Currency, breakdown model.Breakdown, rate float64) (model.SalesRecord, error)
	CloseShift(ctx context.Context, countedLocal float64, countedForeign map[model.Currency]float64) (model.ClosedShift, error)

	Settings() model.StoreSettings
	UpdateSettings(ctx context.Context, in model.StoreSettings) (model.StoreSettings, error)

	ListUsers() ([]service.UserView, error)
	CreateUser(ctx context.Context, name, pin string, role model.Role) (service.UserView, error)
	UpdateUser(ctx context.Context, id, name string, pin *string, role model.Role) (service.UserView, error)
	DeleteUser(ctx context.Context, id string) error

	Sales(p report.Period) ([]model.SalesRecord, error)
	Summary(p report.Period) (report.Summary, error)
	ExportCSV(w io.Writer, p report.Period) error
	ShiftHistory() ([]model.ClosedShift, error)
	SaleReceipt(id string) (report.Receipt, error)
	ShiftReceipt(id string) (report.Receipt, error)
	LastShiftReceipt() (report.Receipt, error)

	Backup() (model.Backup, error)
	Restore(ctx context.Context, b model.Backup) error
}

// Handler реализует HTTP-обработчики API кассы.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	metrics        *metrics.CounterMetrics
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
// m может быть nil.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, m *metrics.CounterMetrics) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		metrics:        m,
		validate:       newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

var errBadRequest = errors.New("bad request")

// decodeJSON читает тело запроса и проверяет его теги validate.
// Ошибка синтаксиса оборачивает errBadRequest, ошибка проверки оборачивает ledger.ErrValidation.
func (h *Handler) decodeJSON(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	if err := h.validate.Struct(dest); err != nil {
		return fmt.Errorf("%w: %s", ledger.ErrValidation, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "gte", "min":
			msg = "must be at least " + fe.Param()
		case "gt":
			msg = "must be greater than " + fe.Param()
		case "numeric":
			msg = "must contain only digits"
		case "oneof":
			msg = "must be one of " + fe.Param()
		default:
			msg = "is invalid"
		}
		parts = append(parts, fe.Field()+" "+msg)
	}
	return strings.Join(parts, "; ")
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf сопоставляет ошибку бизнес-логики с HTTP-статусом.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, ledger.ErrNoOpenShift):
		return http.StatusConflict
	case errors.Is(err, repository.ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError пишет ответ с ошибкой. Текст ошибок 5xx клиенту не отдаётся.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = http.StatusText(code)
	}
	h.writeJSON(w, code, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

// authorize сверяет пользователя из cookie с активной сессией сервиса.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, adminOnly bool) (model.Session, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, service.ErrNoSession)
		return model.Session{}, false
	}

	session, err := h.service.Authorize(p.UserID, adminOnly)
	if err != nil {
		if errors.Is(err, service.ErrNoSession) {
			h.authMiddleware.ClearAuthCookie(w)
		}
		h.writeError(w, r, err)
		return model.Session{}, false
	}
	return session, true
}

// writeReceipt отдаёт чек: format=html и format=md возвращают документ, иначе JSON.
func (h *Handler) writeReceipt(w http.ResponseWriter, r *http.Request, receipt report.Receipt) {
	switch r.URL.Query().Get("format") {
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, receipt.HTML)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, receipt.Markdown)
	default:
		h.writeJSON(w, http.StatusOK, receipt)
	}
}
