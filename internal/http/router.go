package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ibhi/bitwarden-serverless/internal/http/handlers"
	"github.com/ibhi/bitwarden-serverless/internal/logging"
	"github.com/ibhi/bitwarden-serverless/internal/middleware"
)

// Deps are the handlers and collaborators the router wires together
type Deps struct {
	Identity     *handlers.IdentityHandler
	Accounts     *handlers.AccountsHandler
	TwoFactor    *handlers.TwoFactorHandler
	Health       *handlers.HealthHandler
	Tokens       middleware.TokenValidator
	LoginLimiter middleware.Limiter
	Log          logging.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", d.Health.ServeHTTP)

	r.Route("/identity", func(r chi.Router) {
		r.With(middleware.RateLimitMiddleware(d.LoginLimiter, middleware.GetIPKey, d.Log)).
			Post("/connect/token", d.Identity.HandleToken)
	})

	requireAuth := middleware.AuthMiddleware(d.Tokens, d.Log)

	r.Route("/api/accounts", func(r chi.Router) {
		r.Post("/prelogin", d.Accounts.HandlePrelogin)
		r.Post("/register", d.Accounts.HandleRegister)

		// Protected routes (require valid bearer token)
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/profile", d.Accounts.HandleProfile)
			r.Put("/profile", d.Accounts.HandleUpdateProfile)
			r.Post("/keys", d.Accounts.HandleKeys)
			r.Get("/revision-date", d.Accounts.HandleRevisionDate)
			r.Post("/security-stamp", d.Accounts.HandleSecurityStamp)
		})
	})

	r.Route("/api/two-factor", func(r chi.Router) {
		r.Post("/recover", d.TwoFactor.HandleRecover)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", d.TwoFactor.HandleList)
			r.Post("/get-authenticator", d.TwoFactor.HandleGetAuthenticator)
			r.Post("/authenticator", d.TwoFactor.HandleActivateAuthenticator)
			r.Put("/authenticator", d.TwoFactor.HandleActivateAuthenticator)
			r.Post("/disable", d.TwoFactor.HandleDisable)
			r.Put("/disable", d.TwoFactor.HandleDisable)
			r.Post("/get-recover", d.TwoFactor.HandleGetRecover)
			r.Post("/get-u2f", d.TwoFactor.HandleGetU2F)
			r.Post("/get-u2f-challenge", d.TwoFactor.HandleU2FChallenge)
			r.Post("/u2f", d.TwoFactor.HandleActivateU2F)
			r.Put("/u2f", d.TwoFactor.HandleActivateU2F)
			r.Delete("/u2f", d.TwoFactor.HandleDeleteU2F)
		})
	})

	return r
}
