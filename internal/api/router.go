package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/starford/lectorlips/internal/compileservice"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Limiter throttles every route except Events. Nil disables it.
	Limiter *rate.Limiter
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events    http.Handler
	OnCompile CompileHook
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *compileservice.Service, opts RouterOptions) chi.Router {
	h := NewHandler(svc, opts.OnCompile)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(opts.Limiter))

		r.Post("/compile", h.Compile)

		r.Get("/mapping", h.GetMapping)
		r.Put("/mapping", h.PutMapping)

		r.Get("/history", h.ListHistory)
		r.Get("/history/{id}", h.GetHistory)
	})

	// SSE endpoint (protected by same auth middleware).
	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
