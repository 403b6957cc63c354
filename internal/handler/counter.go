package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/service"
)

type loginRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=12"`
}

// Login обрабатывает вход по PIN и выдаёт cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeJSON(r, &req); err != nil {
		if errors.Is(err, ledger.ErrValidation) {
			// Формат PIN не раскрывается: любой отказ выглядит одинаково.
			err = service.ErrInvalidCredentials
		}
		h.writeError(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), req.PIN)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, res.Session); err != nil {
		h.logger.Error("set auth cookie", zap.Error(err), zap.String("userID", res.Session.UserID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// Logout завершает сессию и удаляет cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}

	if err := h.service.Logout(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetSession возвращает активную сессию.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.authorize(w, r, false)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// GetShift возвращает открытую смену или 204, если её нет.
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}

	shift, ok := h.service.CurrentShift()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, shift)
}

type openShiftRequest struct {
	StartAmount   float64 `json:"startAmount" validate:"gte=0"`
	ForeignAmount float64 `json:"foreignAmount" validate:"gte=0"`
}

// OpenShift открывает смену для текущего кассира.
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}

	var req openShiftRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	shift, err := h.service.OpenShift(r.Context(), req.StartAmount, req.ForeignAmount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, shift)
}

type closeShiftRequest struct {
	FinalAmount      float64                    `json:"finalAmount"`
	PerCurrencyFinal map[model.Currency]float64 `json:"perCurrencyFinalAmount" validate:"dive,gte=0"`
}

type closeShiftResponse struct {
	Shift  model.ClosedShift                             `json:"shift"`
	Status map[model.Currency]model.ReconciliationStatus `json:"status"`
}

// CloseShift сверяет пересчитанную кассу и закрывает смену. Сессия завершается.
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}

	var req closeShiftRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	closed, err := h.service.CloseShift(r.Context(), req.FinalAmount, req.PerCurrencyFinal)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.authMiddleware.ClearAuthCookie(w)
	h.writeJSON(w, http.StatusOK, closeShiftResponse{
		Shift:  closed,
		Status: ledger.Statuses(closed),
	})
}

// LastShiftReceipt возвращает отчёт только что закрытой смены, один раз.
func (h *Handler) LastShiftReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.LastShiftReceipt()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeReceipt(w, r, receipt)
}

type saleRequest struct {
	Currency  model.Currency  `json:"currency" validate:"required"`
	Breakdown model.Breakdown `json:"breakdown" validate:"required"`
	Rate      float64         `json:"rate" validate:"gte=0"`
}

// RecordSale проводит покупку иностранной валюты.
// Нулевой курс означает курс из настроек кассы.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}

	var req saleRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	record, err := h.service.RecordSale(r.Context(), req.Currency, req.Breakdown, req.Rate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

// SaleReceipt возвращает чек операции.
func (h *Handler) SaleReceipt(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}

	receipt, err := h.service.SaleReceipt(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeReceipt(w, r, receipt)
}

// GetSettings возвращает настройки кассы.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authorize(w, r, false); !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, h.service.Settings())
}
