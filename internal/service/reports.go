package service

import (
	"fmt"
	"io"

	"github.com/mmeshcher/exchange-counter/internal/ledger"
	"github.com/mmeshcher/exchange-counter/internal/model"
	"github.com/mmeshcher/exchange-counter/internal/report"
)

// Sales возвращает операции обмена за период.
func (s *Service) Sales(p report.Period) ([]model.SalesRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	return report.FilterSales(s.sales.All(), p), nil
}

// Summary возвращает сводку за период.
func (s *Service) Summary(p report.Period) (report.Summary, error) {
	sales, err := s.Sales(p)
	if err != nil {
		return report.Summary{}, err
	}
	return report.Summarize(sales), nil
}

// ExportCSV пишет операции за период в CSV.
func (s *Service) ExportCSV(w io.Writer, p report.Period) error {
	sales, err := s.Sales(p)
	if err != nil {
		return err
	}
	return report.WriteCSV(w, sales)
}

// ShiftHistory возвращает закрытые смены, начиная с последней.
func (s *Service) ShiftHistory() ([]model.ClosedShift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return nil, err
	}
	return s.ledger.History(), nil
}

// SaleReceipt строит чек операции. Кассир видит только свои операции.
func (s *Service) SaleReceipt(id string) (report.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.requireSession()
	if err != nil {
		return report.Receipt{}, err
	}

	for _, r := range s.sales.All() {
		if r.ID != id {
			continue
		}
		if !session.IsAdmin() && r.Cashier != session.UserName {
			return report.Receipt{}, ErrForbidden
		}
		return report.SaleReceipt(r, s.settings.Clone())
	}
	return report.Receipt{}, fmt.Errorf("%w: sale %s", ErrNotFound, id)
}

// ShiftReceipt строит отчёт закрытия смены по id. Доступно администратору.
func (s *Service) ShiftReceipt(id string) (report.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireAdmin(); err != nil {
		return report.Receipt{}, err
	}
	for _, closed := range s.ledger.History() {
		if closed.ID == id {
			return report.ShiftReceipt(closed, s.sales.ByShift(closed.ID), s.settings.Clone(), ledger.Classify)
		}
	}
	return report.Receipt{}, fmt.Errorf("%w: shift %s", ErrNotFound, id)
}

// LastShiftReceipt выдаёт отчёт только что закрытой смены. Закрытие завершает
// сессию, поэтому отчёт доступен без неё, но только один раз.
func (s *Service) LastShiftReceipt() (report.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.ledger.History()
	if s.pendingReceipt == "" || len(history) == 0 || history[0].ID != s.pendingReceipt {
		return report.Receipt{}, fmt.Errorf("%w: no pending shift receipt", ErrNotFound)
	}
	closed := history[0]
	receipt, err := report.ShiftReceipt(closed, s.sales.ByShift(closed.ID), s.settings.Clone(), ledger.Classify)
	if err != nil {
		return report.Receipt{}, err
	}
	s.pendingReceipt = ""
	return receipt, nil
}
