package api

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/botkit/internal/config"
	"github.com/ashureev/botkit/internal/middleware"
)

// Routes is implemented by every handler mounted on the router.
type Routes interface {
	RegisterRoutes(r chi.Router)
}

// NewRouter builds the HTTP router with the middleware chain described by cfg.
// The rate limiter eviction loop stops when ctx is done.
func NewRouter(ctx context.Context, cfg config.HTTPConfig, handlers ...Routes) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.BodySize > 0 {
		r.Use(chiMiddleware.RequestSize(cfg.BodySize))
	}
	r.Use(middleware.AccessLog(os.Stdout))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	if cfg.ReverseProxy {
		r.Use(chiMiddleware.RealIP)
	}
	if cfg.Limit > 0 {
		window := cfg.LimitWindow
		if window <= 0 {
			window = time.Hour
		}
		r.Use(middleware.NewRateLimiter(ctx, cfg.Limit, window).Middleware)
	}
	r.Use(middleware.BearerAuth(cfg.AuthToken, "/info", "/ready"))

	for _, h := range handlers {
		h.RegisterRoutes(r)
	}
	return r
}
