package security

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"
)

type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration

	Logger *slog.Logger
}

var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	defaultCORSHeaders = []string{
		"Authorization", "Content-Type", "Accept", "X-Request-ID", "If-None-Match", "X-Api-Key",
	}
	defaultExposed = []string{
		"X-Request-ID", "X-Response-Time", "X-Cache", "Retry-After",
		"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
	}
)

// CORS monta o handler do rs/cors. Sem origens configuradas, nada é liberado.
func CORS(opts CORSOptions) func(next http.Handler) http.Handler {
	if opts.AllowedMethods == nil {
		opts.AllowedMethods = defaultCORSMethods
	}
	if opts.AllowedHeaders == nil {
		opts.AllowedHeaders = defaultCORSHeaders
	}
	if opts.ExposedHeaders == nil {
		opts.ExposedHeaders = defaultExposed
	}

	co := cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   opts.AllowedHeaders,
		ExposedHeaders:   opts.ExposedHeaders,
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           int(opts.MaxAge / time.Second),
	}
	// rs/cors trata lista vazia como "*"
	if len(co.AllowedOrigins) == 0 {
		co.AllowOriginFunc = func(string) bool { return false }
	}
	c := cors.New(co)
	if opts.Logger != nil && opts.Logger.Enabled(context.Background(), slog.LevelDebug) {
		c.Log = slog.NewLogLogger(opts.Logger.Handler(), slog.LevelDebug)
	}

	return c.Handler
}
