package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/exchange-counter/internal/middleware"
	"github.com/mmeshcher/exchange-counter/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware кассы.
// gatherer может быть nil: тогда /metrics не публикуется.
func (h *Handler) SetupRouter(gatherer prometheus.Gatherer) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger, h.metrics))

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/session/login", h.Login)
		r.Get("/shift/last/receipt", h.LastShiftReceipt)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/session/logout", h.Logout)
			r.Get("/session", h.GetSession)

			r.Get("/shift", h.GetShift)
			r.Post("/shift/open", h.OpenShift)
			r.Post("/shift/close", h.CloseShift)

			r.With(custommiddleware.RequireRole(model.ExchangeRoles()...)).Post("/sales", h.RecordSale)
			r.Get("/sales/{id}/receipt", h.SaleReceipt)

			r.Get("/settings", h.GetSettings)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleAdmin))

				r.Put("/settings", h.UpdateSettings)

				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Put("/users/{id}", h.UpdateUser)
				r.Delete("/users/{id}", h.DeleteUser)

				r.Get("/sales", h.ListSales)
				r.Get("/reports/summary", h.SalesSummary)
				r.Get("/reports/sales.csv", h.ExportSalesCSV)

				r.Get("/shifts/history", h.ShiftHistory)
				r.Get("/shifts/{id}/receipt", h.ShiftReceipt)

				r.Get("/backup", h.Backup)
				r.Post("/backup/restore", h.Restore)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
