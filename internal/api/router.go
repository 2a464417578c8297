package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tundeabiodun/lms-backend/internal/api/handlers"
	"github.com/tundeabiodun/lms-backend/internal/auth"
	"github.com/tundeabiodun/lms-backend/internal/config"
	"github.com/tundeabiodun/lms-backend/internal/middleware"
)

type RouterDeps struct {
	Cfg      config.Config
	Auth     *handlers.AuthHandler
	Payments *handlers.PaymentHandler
	Tokens   *auth.TokenManager
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.RateLimit(d.Cfg.RateRPS), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", promhttp.Handler())

	authn := middleware.NewAuthMiddleware(d.Tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", d.Auth.Register)
		r.Post("/auth/login", d.Auth.Login)

		// Provider callback is authenticated by its HMAC signature, not a
		// user token, so it stays outside the auth group.
		r.Post("/payments/webhook", d.Payments.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(authn.Auth)

			r.Post("/payments/initiate", d.Payments.Initiate)
			r.Post("/payments/verify", d.Payments.Verify)
			r.Post("/payments/validate-coupon", d.Payments.ValidateCoupon)
			r.Get("/payments/transactions", d.Payments.Transactions)
			r.Get("/payments/methods", d.Payments.Methods)
			r.Get("/payments/wallet", d.Payments.Wallet)
			r.Post("/payments/wallet/credit", d.Payments.WalletCredit)
		})
	})

	return r
}
