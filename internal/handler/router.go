package handler

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mmeshcher/picking-system/internal/middleware"
)

// NewRouter собирает маршрутизатор API хаба.
func NewRouter(h *Handler, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(logger))

	r.Get("/api/health", h.Health)

	r.Route("/api/sync", func(r chi.Router) {
		r.Get("/health", h.SyncHealth)
		r.Get("/inventory", h.GetInventory)
		r.Get("/pending-orders", h.PendingOrders)
		r.Post("/complete-order", h.CompleteOrder)
		r.Post("/upload-logs", h.UploadLogs)
		r.Post("/upload-document", h.UploadDocument)
		r.Post("/start-session", h.StartSession)
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/list", h.PendingOrders)
		r.Post("/load", h.LoadOrder)
	})

	r.Route("/api/inventory", func(r chi.Router) {
		r.Post("/import", h.ImportInventory)
		r.Get("/export", h.ExportInventory)
	})

	return r
}
