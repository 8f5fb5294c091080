package handlers

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alextreichler/minishop/internal/metrics"
)

type Routes struct {
	Shop *ShopHandler
	Auth *AuthHandler
	// LoginLimiter throttles POST /login; nil disables it.
	LoginLimiter *RateLimiter
	// Static is served under /static/.
	Static fs.FS
	// Health backs /healthz; nil always reports healthy.
	Health func(context.Context) error
	// CSRF protects state-changing requests; nil disables it.
	CSRF func(http.Handler) http.Handler
}

// NewRouter wires every route. The gate runs ahead of routing, so an
// anonymous request for a protected prefix is redirected even when no route
// matches it.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(SecurityHeadersMiddleware)
	r.Use(rt.Shop.Gate.Protect)
	if rt.CSRF != nil {
		r.Use(rt.CSRF)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/products", http.StatusSeeOther)
	})
	r.Get("/healthz", healthz(rt.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/icon.png", Icon)
	if rt.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(rt.Static))))
	}

	r.Get("/login", rt.Auth.LoginGet)
	login := http.Handler(http.HandlerFunc(rt.Auth.LoginPost))
	if rt.LoginLimiter != nil {
		login = rt.LoginLimiter.Middleware(login)
	}
	r.Method(http.MethodPost, "/login", login)
	r.Get("/logout", rt.Auth.Logout)
	r.Post("/logout", rt.Auth.Logout)

	r.Get("/products", rt.Shop.Products)
	r.Post("/products/{id}/add", rt.Shop.AddToCart)

	r.Get("/checkout", rt.Shop.CheckoutPage)
	r.Post("/checkout/items/{id}/quantity", rt.Shop.SetQuantity)
	r.Post("/checkout/items/{id}/remove", rt.Shop.RemoveFromCart)
	r.Post("/checkout/pay", rt.Shop.Pay)

	r.Get("/receipt/{id}", rt.Shop.Receipt)

	r.NotFound(rt.Shop.NotFound)
	r.MethodNotAllowed(rt.Shop.NotFound)
	return r
}

func healthz(check func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Warn("Health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}
