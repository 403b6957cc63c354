package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/validation"
)

// OpenShift открывает смену для пользователя текущей сессии.
func (s *Service) OpenShift(ctx context.Context, startAmount, foreignAmount float64) (model.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return model.Shift{}, err
	}
	if err := validation.ValidateAmount("startAmount", startAmount); err != nil {
		return model.Shift{}, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
	}
	if err := validation.ValidateAmount("foreignAmount", foreignAmount); err != nil {
		return model.Shift{}, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
	}

	previous, replaced := s.ledger.Current()
	shift, err := s.ledger.Open(ledger.Cashier{ID: session.UserID, Name: session.UserName}, startAmount, foreignAmount, s.now())
	if err != nil {
		return model.Shift{}, err
	}
	if replaced {
		s.logger.Info("replaced empty shift", zap.String("shift_id", previous.ID), zap.String("owner", previous.UserName))
	}
	s.metrics.IncShiftOpened()
	s.logger.Info("shift opened",
		zap.String("shift_id", shift.ID),
		zap.String("user_id", session.UserID),
		zap.Float64("start_amount", startAmount),
	)

	if err := s.persist(ctx); err != nil {
		return shift, err
	}
	return shift, nil
}

// CurrentShift возвращает открытую смену.
func (s *Service) CurrentShift() (model.Shift, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ledger.Current()
}

// RecordSale проводит покупку валюты в смене текущего пользователя.
// Нулевой курс означает курс из настроек.
func (s *Service) RecordSale(ctx context.Context, currency model.Currency, breakdown model.Breakdown, rate float64) (model.SalesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return model.SalesRecord{}, err
	}
	shift, ok := s.ledger.Current()
	if !ok {
		return model.SalesRecord{}, ledger.ErrNoOpenShift
	}
	if !session.Role.CanExchange() {
		return model.SalesRecord{}, fmt.Errorf("%w: role %s cannot buy currency", ErrForbidden, session.Role)
	}
	if shift.UserID != session.UserID {
		return model.SalesRecord{}, fmt.Errorf("%w: shift %s belongs to %s", ledger.ErrConflict, shift.ID, shift.UserName)
	}

	if rate == 0 && currency.IsForeign() {
		rate = s.settings.Rate(currency)
	}

	record, err := s.recorder.Process(ledger.Sale{
		Currency:  currency,
		Breakdown: breakdown,
		Rate:      rate,
		Cashier:   session.UserName,
	}, s.now())
	if err != nil {
		return model.SalesRecord{}, err
	}

	s.metrics.ObserveSale(record)
	s.logger.Info("sale recorded",
		zap.String("sale_id", record.ID),
		zap.String("currency", string(record.Currency)),
		zap.Float64("amount", record.Amount),
		zap.Float64("local_paid", record.LocalAmountPaid),
	)

	if err := s.persist(ctx); err != nil {
		return record, err
	}
	return record, nil
}

// CloseShift сверяет кассу и закрывает смену. После закрытия сессия завершается.
func (s *Service) CloseShift(ctx context.Context, countedLocal float64, countedForeign map[model.Currency]float64) (model.ClosedShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return model.ClosedShift{}, err
	}
	if _, ok := s.ledger.Current(); !ok {
		return model.ClosedShift{}, ledger.ErrNoOpenShift
	}
	if err := validation.ValidateFinite("finalAmount", countedLocal); err != nil {
		return model.ClosedShift{}, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
	}
	for c, v := range countedForeign {
		if !c.IsForeign() {
			return model.ClosedShift{}, fmt.Errorf("%w: unsupported currency %q", ledger.ErrValidation, c)
		}
		if err := validation.ValidateAmount("counted "+string(c), v); err != nil {
			return model.ClosedShift{}, fmt.Errorf("%w: %w", ledger.ErrValidation, err)
		}
	}

	closed, err := s.ledger.Close(countedLocal, countedForeign, s.now())
	if err != nil {
		return model.ClosedShift{}, err
	}

	status := ledger.Classify(closed.Difference)
	s.metrics.ObserveClose(closed, status)
	s.logger.Info("shift closed",
		zap.String("shift_id", closed.ID),
		zap.String("closed_by", session.UserID),
		zap.Float64("difference", closed.Difference),
		zap.String("status", string(status)),
	)

	s.session = nil
	s.pendingReceipt = closed.ID

	if err := s.persist(ctx); err != nil {
		return closed, err
	}
	return closed, nil
}
