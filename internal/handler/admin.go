package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/report"
)

type settingsRequest struct {
	Name           string                     `json:"name" validate:"required"`
	TaxID          string                     `json:"taxId"`
	Phone          string                     `json:"phone"`
	Address        string                     `json:"address"`
	ReceiptMessage string                     `json:"receiptMessage"`
	Rates          map[model.Currency]float64 `json:"rates" validate:"dive,gt=0"`
}

// UpdateSettings заменяет настройки кассы.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	var req settingsRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	settings, err := h.service.UpdateSettings(r.Context(), model.StoreSettings{
		Name:           req.Name,
		TaxID:          req.TaxID,
		Phone:          req.Phone,
		Address:        req.Address,
		ReceiptMessage: req.ReceiptMessage,
		Rates:          req.Rates,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// ListUsers возвращает пользователей без учётных данных.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	users, err := h.service.ListUsers()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

type createUserRequest struct {
	Name string     `json:"name" validate:"required"`
	PIN  string     `json:"pin" validate:"required,numeric,min=4,max=12"`
	Role model.Role `json:"role" validate:"required"`
}

// CreateUser добавляет пользователя.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	var req createUserRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req.Name, req.PIN, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Name string     `json:"name" validate:"required"`
	PIN  *string    `json:"pin,omitempty" validate:"omitnil,numeric,min=4,max=12"`
	Role model.Role `json:"role" validate:"required"`
}

// UpdateUser меняет пользователя. PIN меняется, только если он передан.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	var req updateUserRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "id"), req.Name, req.PIN, req.Role)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// DeleteUser удаляет пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// period читает параметры from и to запроса.
func (h *Handler) period(w http.ResponseWriter, r *http.Request) (report.Period, bool) {
	q := r.URL.Query()
	p, err := report.ParsePeriod(q.Get("from"), q.Get("to"), time.Local)
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return report.Period{}, false
	}
	return p, true
}

// ListSales возвращает операции за период, начиная с последней.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}
	p, ok := h.period(w, r)
	if !ok {
		return
	}

	sales, err := h.service.Sales(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(sales) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, sales)
}

// SalesSummary возвращает итоги операций за период.
func (h *Handler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}
	p, ok := h.period(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Summary(p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// ExportSalesCSV выгружает операции за период в CSV.
func (h *Handler) ExportSalesCSV(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}
	p, ok := h.period(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportCSV(&buf, p); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="ventas.csv"`)
	_, _ = w.Write(buf.Bytes())
}

// ShiftHistory возвращает закрытые смены.
func (h *Handler) ShiftHistory(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	history, err := h.service.ShiftHistory()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(history) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// ShiftReceipt возвращает отчёт закрытия смены по id.
func (h *Handler) ShiftReceipt(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	receipt, err := h.service.ShiftReceipt(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeReceipt(w, r, receipt)
}

// Backup выгружает резервную копию данных.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	b, err := h.service.Backup()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	name := fmt.Sprintf("backup-%s.json", b.Timestamp.Format("20060102-150405"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	h.writeJSON(w, http.StatusOK, b)
}

// Restore заменяет данные резервной копией. Неизвестные поля копии игнорируются.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, true); !ok {
		return
	}

	var b model.Backup
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	if err := h.service.Restore(r.Context(), b); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
