package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/surfbooking/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware формы бронирования.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/booking", func(r chi.Router) {
		r.Post("/sessions", h.CreateSession)
		r.Get("/schedules", h.GetSchedules)
		r.Get("/countries", h.GetCountries)

		r.Group(func(r chi.Router) {
			r.Use(h.sessions.Middleware)

			r.Get("/master-data", h.GetMasterData)
			r.Post("/master-data/refresh", h.RefreshMasterData)

			r.Put("/participants", h.SetParticipants)
			r.Patch("/participants/{id}", h.UpdateParticipant)
			r.Put("/activity", h.SetActivity)

			r.Get("/recommendations", h.GetRecommendations)
			r.Post("/selections", h.Select)
			r.Delete("/selections/{key}", h.CancelSelection)

			r.Get("/summary", h.GetSummary)
			r.Post("/voucher", h.ApplyVoucher)
			r.Delete("/voucher", h.ClearVoucher)
			r.Put("/payment", h.SetPayment)
			r.Get("/payment/methods", h.GetPaymentMethods)
			r.Put("/customer", h.SetCustomer)

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", h.GetCheckout)
				r.Post("/", h.Checkout)
				r.Post("/confirm", h.ConfirmCheckout)
				r.Post("/callback", h.GatewayCallback)
				r.Post("/cancel", h.CancelCheckout)
				r.Post("/retry", h.RetryCheckout)
				r.Get("/attempts/{id}", h.GetAttempt)
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
