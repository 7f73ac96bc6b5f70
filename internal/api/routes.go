package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the router. metricsHandler is mounted at /metrics when set.
func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(m.CORS(corsOrigins))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// long-lived streams stay outside the timeout and rate limit
		r.Get("/events/ws", h.HandleWebSocket)
		r.Get("/events/stream", h.HandleSSE)

		r.Group(func(r chi.Router) {
			r.Use(m.RateLimit(rateLimitRPM))
			r.Use(m.Timeout(15 * time.Second))

			r.Get("/domains", h.ListDomains)

			r.Route("/{domain}", func(r chi.Router) {
				r.Get("/events", h.ListEvents)

				r.Route("/ledger", func(r chi.Router) {
					r.Get("/", h.GetLedgerState)
					r.Get("/accounts/{address}", h.GetAccount)
					r.Get("/allowances/{owner}/{spender}", h.GetAllowance)
					r.Post("/transfer", h.Transfer)
					r.Post("/transfer-shares", h.TransferShares)
					r.Post("/approve", h.Approve)
					r.Post("/increase-allowance", h.IncreaseAllowance)
					r.Post("/decrease-allowance", h.DecreaseAllowance)
					r.Post("/issue", h.Issue)
					r.Post("/redeem", h.Redeem)
					r.Post("/controller/transfer", h.ControllerTransfer)
					r.Post("/controller/redeem", h.ControllerRedeem)
					r.Post("/distribute", h.DistributeInterests)
					r.Post("/can-transfer", h.CanTransfer)
					r.Put("/roles", h.SetRole)
					r.Put("/limits", h.SetLimits)
					r.Post("/upgrade", h.Upgrade)
				})

				r.Get("/permissions/{address}", h.GetPermission)
				r.Put("/permissions/{address}", h.SetPermission)

				r.Route("/documents", func(r chi.Router) {
					r.Get("/", h.ListDocuments)
					r.Get("/{name}", h.GetDocument)
					r.Put("/{name}", h.SetDocument)
					r.Delete("/{name}", h.RemoveDocument)
				})

				r.Route("/wrapped", func(r chi.Router) {
					r.Get("/", h.GetWrapped)
					r.Post("/wrap", h.Wrap)
					r.Post("/unwrap", h.Unwrap)
					r.Post("/transfer", h.WrappedTransfer)
					r.Post("/approve", h.WrappedApprove)
				})

				r.Route("/bridge", func(r chi.Router) {
					r.Get("/", h.GetBridge)
					r.Post("/send", h.BridgeSend)
					r.Post("/receive", h.BridgeReceive)
					r.Get("/send-data", h.GetSendData)
					r.Get("/receipts/{id}", h.GetReceipt)
					r.Put("/forbidden/{address}", h.SetForbidden)
					r.Put("/peers", h.SetPeer)
					r.Put("/send-enabled", h.SetSendEnabled)
					r.Put("/fallback", h.SetFallback)
					r.Put("/roles", h.SetBridgeRole)
				})

				r.Route("/timelock", func(r chi.Router) {
					r.Post("/schedule", h.Schedule)
					r.Post("/execute", h.Execute)
					r.Post("/cancel", h.Cancel)
					r.Get("/operations/{id}", h.GetOperation)
				})
			})
		})
	})

	return r
}
