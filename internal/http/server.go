package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler, adminSecret string, log *zap.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/buy", handler.Buy)
		r.Post("/sell", handler.Sell)
		r.Get("/status", handler.Status)
		r.Get("/balance", handler.Balance)
		r.Get("/quote", handler.Quote)
		r.Get("/tokens", handler.Tokens)
		r.Get("/transaction/{id}", handler.Transaction)

		r.Route("/mpesa", func(r chi.Router) {
			r.Post("/callback", handler.MpesaCallback)
			r.Post("/b2c/result", handler.B2CResult)
			r.Post("/b2c/timeout", handler.B2CTimeout)
		})

		r.Group(func(r chi.Router) {
			r.Use(adminOnly(adminSecret, log))
			r.Post("/payout", handler.Payout)
			r.Get("/transactions/history", handler.History)
			r.Post("/transaction/{id}/cancel", handler.Cancel)
			r.Put("/rates/{token}", handler.SetRate)
		})
	})

	return &Server{Router: r}
}
