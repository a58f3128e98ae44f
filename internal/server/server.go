// Package server monta o pipeline a partir da configuração: escolhe os stores
// (Redis quando há conexão, memória caso contrário), registra os estágios no
// Builder e expõe o roteador chi com as rotas protegidas.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"middleware-pipeline/internal/config"
	"middleware-pipeline/internal/health"
	"middleware-pipeline/internal/redisx"
	"middleware-pipeline/middleware/auth"
	authapp "middleware-pipeline/middleware/auth/application"
	authdomain "middleware-pipeline/middleware/auth/domain"
	authinfra "middleware-pipeline/middleware/auth/infra"
	"middleware-pipeline/middleware/observability"
	obsapp "middleware-pipeline/middleware/observability/application"
	obsdomain "middleware-pipeline/middleware/observability/domain"
	obsinfra "middleware-pipeline/middleware/observability/infra"
	"middleware-pipeline/middleware/pipeline"
	"middleware-pipeline/middleware/ratelimit"
	rlapp "middleware-pipeline/middleware/ratelimit/application"
	rldomain "middleware-pipeline/middleware/ratelimit/domain"
	rlinfra "middleware-pipeline/middleware/ratelimit/infra"
	"middleware-pipeline/middleware/respcache"
	cachedomain "middleware-pipeline/middleware/respcache/domain"
	cacheinfra "middleware-pipeline/middleware/respcache/infra"
	"middleware-pipeline/middleware/sanitize"
	"middleware-pipeline/middleware/security"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

const (
	samplesTTL          = 5 * time.Minute
	permissionsCacheTTL = time.Minute
	cacheJanitorEvery   = time.Minute

	// montado só quando a blacklist aceita escrita (Redis)
	logoutPath = "/auth/logout"
)

type Deps struct {
	Logger *slog.Logger
	// Redis nil faz todos os stores rodarem em memória.
	Redis redis.UniversalClient
	// Registry nil cria um registry próprio (evita colisão com o DefaultRegisterer em testes).
	Registry *prometheus.Registry
}

// Stack é o pipeline montado. Guarde-o até o shutdown.
type Stack struct {
	cfg      *config.Config
	logger   *slog.Logger
	builder  *pipeline.Builder
	registry *prometheus.Registry

	jwt      *authinfra.JWTValidator
	authOpts auth.Options
	guard    auth.Guard
	cache    pipeline.Middleware
	metrics  obsdomain.MetricsStore
	rlStats  rldomain.StatsReader
	checks   health.Checks

	closers []func(context.Context) error
}

// New cria os stores e registra os estágios. ctx controla os janitors em memória.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("server: nil config")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := deps.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Stack{
		cfg:      cfg,
		logger:   logger,
		builder:  pipeline.NewBuilder(),
		registry: reg,
		checks:   health.Checks{},
	}

	var (
		counter    rldomain.CounterStore
		stats      rldomain.StatsStore
		cacheStore cachedomain.Store
		blacklist  authdomain.Blacklist
	)
	if deps.Redis != nil {
		counter = rlinfra.NewRedisCounterStore(deps.Redis, rlinfra.WithCounterPrefix(cfg.RateLimit.Prefix))
		if cfg.RateLimit.Stats.Enabled {
			rs := rlinfra.NewRedisStatsStore(deps.Redis,
				rlinfra.WithStatsPrefix(cfg.RateLimit.Stats.Prefix),
				rlinfra.WithStatsTTL(cfg.RateLimit.Stats.TTL),
				rlinfra.WithStatsBucket(cfg.RateLimit.Stats.Bucket),
				rlinfra.WithStatsTrackKeys(cfg.RateLimit.Stats.TrackKeys),
			)
			stats, s.rlStats = rs, rs
		}
		cacheStore = cacheinfra.NewRedisStore(deps.Redis)
		s.metrics = obsinfra.NewRedisMetricsStore(deps.Redis,
			obsinfra.WithMetricsPrefix(cfg.Observability.MetricsPrefix),
			obsinfra.WithSamples(cfg.Observability.SampleSize, samplesTTL),
		)
		blacklist = authinfra.NewRedisBlacklist(deps.Redis)
		s.checks["redis"] = redisx.Healthcheck(deps.Redis)
	} else {
		mc := rlinfra.NewMemoryCounterStore()
		mc.StartJanitor(ctx)
		counter = mc
		if cfg.RateLimit.Stats.Enabled {
			mst := rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.RateLimit.Stats.TrackKeys))
			stats, s.rlStats = mst, mst
		}
		ms := cacheinfra.NewMemoryStore(cacheinfra.WithMaxEntries(cfg.Cache.MaxEntries))
		ms.StartJanitor(ctx, cacheJanitorEvery)
		s.closers = append(s.closers, func(context.Context) error { return ms.Close() })
		cacheStore = ms
		s.metrics = obsinfra.NewMemoryMetricsStore(cfg.Observability.SampleSize)
		logger.Warn("redis not configured; rate limits, cache and metrics are local to this instance")
	}

	if err := s.registerAuth(blacklist); err != nil {
		return nil, err
	}
	if err := s.registerObservability(); err != nil {
		return nil, err
	}

	s.builder.
		Register("recover", pipeline.Recover(logger)).
		Register("security", security.Headers(cfg.Security.Headers)).
		Register("cors", security.CORS(security.CORSOptions{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
			Logger:           logger,
		})).
		Register("concurrency", ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.AcquireTimeout,
			Logger:         logger,
		}))

	var sanitizeMW pipeline.Middleware
	if cfg.Sanitize.Enabled {
		sanitizeMW = sanitize.Middleware(sanitize.Options{
			SkipFields:     cfg.Sanitize.SkipFields,
			MaxUploadBytes: cfg.Sanitize.MaxUploadBytes,
			MaxBodyBytes:   cfg.Sanitize.MaxBodyBytes,
			Logger:         logger,
		})
	}
	s.builder.Register("sanitize", sanitizeMW)

	var rateMW pipeline.Middleware
	if cfg.RateLimit.Enabled {
		rateMW = ratelimit.Middleware(ratelimit.Options{
			Store:             counter,
			Stats:             stats,
			Policy:            policyFrom(cfg.RateLimit),
			KeyHeader:         cfg.RateLimit.KeyHeader,
			TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
			Timeout:           cfg.RateLimit.Timeout,
			Logger:            logger,
		})
	}
	s.builder.Register("ratelimit", rateMW)

	if cfg.Cache.Enabled {
		s.cache = respcache.Middleware(respcache.Options{
			Store:             cacheStore,
			TTL:               cfg.Cache.TTL,
			Strategy:          cachedomain.Strategy(cfg.Cache.Strategy),
			ExcludedPrefixes:  cfg.Cache.ExcludedPrefixes,
			ETag:              cfg.Cache.ETag,
			SingleFlight:      cfg.Cache.SingleFlight,
			InvalidateOnWrite: cfg.Cache.InvalidateOnWrite,
			ResourceDepth:     cfg.Cache.ResourceDepth,
			Timeout:           cfg.Cache.Timeout,
			Logger:            logger,
		})
	}

	return s, nil
}

func (s *Stack) registerAuth(blacklist authdomain.Blacklist) error {
	var authn authapp.Authenticator
	if s.cfg.JWT.Secret != "" {
		opts := []authinfra.JWTOption{
			authinfra.WithIssuer(s.cfg.JWT.Issuer),
			authinfra.WithLeeway(s.cfg.JWT.Leeway),
		}
		if blacklist != nil {
			opts = append(opts, authinfra.WithBlacklist(blacklist))
		}
		v, err := authinfra.NewJWTValidator([]byte(s.cfg.JWT.Secret), opts...)
		if err != nil {
			return fmt.Errorf("server: jwt validator: %w", err)
		}
		s.jwt = v
		authn.Validator = v
	} else {
		s.logger.Warn("jwt secret not configured; bearer tokens will be rejected")
	}

	s.authOpts = auth.Options{Authenticator: authn, Logger: s.logger}
	s.guard = auth.Guard{
		Authorizer: authapp.Authorizer{
			Resolver: authinfra.NewCachedResolver(authinfra.RolePermissions(s.cfg.RolePermissions), permissionsCacheTTL),
		},
		Logger: s.logger,
	}
	s.builder.Register("authenticate", auth.Authenticate(auth.Options{
		Authenticator: authn,
		Optional:      true,
		Logger:        s.logger,
	}))
	return nil
}

func (s *Stack) registerObservability() error {
	cfg := s.cfg.Observability

	prom, err := obsinfra.NewPrometheusRecorder(cfg.Namespace, s.registry)
	if err != nil {
		return fmt.Errorf("server: prometheus: %w", err)
	}
	s.builder.Register("observability", observability.Middleware(observability.Options{
		Recorder:          obsapp.NewRecorder(s.logger, s.metrics, prom),
		Redactor:          obsapp.NewRedactor(cfg.MaxString, cfg.SensitiveKeys...),
		SlowThreshold:     cfg.SlowThreshold,
		ExcludedPaths:     cfg.ExcludedPaths,
		MaxBodyLog:        cfg.MaxBodyLog,
		TrustProxyHeaders: s.cfg.Server.TrustProxyHeaders,
		Logger:            s.logger,
	}))

	var tracing pipeline.Middleware
	if s.cfg.Tracing.Enabled {
		shutdown, err := obsinfra.InitTracer(s.cfg.Tracing.ServiceName, s.logger)
		if err != nil {
			return fmt.Errorf("server: tracer: %w", err)
		}
		s.closers = append(s.closers, shutdown)
		tracing = observability.Tracing(s.cfg.Tracing.ServiceName)
	}
	s.builder.Register("tracing", tracing)
	return nil
}

func policyFrom(c config.RateLimit) rlapp.Policy {
	p := rlapp.DefaultPolicy()
	p.Window = c.Window
	p.AuthMax = c.AuthMax
	p.UserDefault = c.UserDefault
	p.DefaultMax = c.DefaultMax
	if len(c.AuthPatterns) > 0 {
		p.AuthPatterns = c.AuthPatterns
	}
	if len(c.RoleMax) > 0 {
		p.RoleMax = c.RoleMax
	}
	return p
}

// Order devolve a ordem global efetiva. Com tracing ligado e fora da lista,
// o span entra logo depois do recover para cobrir o resto da cadeia.
func (s *Stack) Order() []string {
	order := slices.Clone(s.cfg.Pipeline.Order)
	if !s.cfg.Tracing.Enabled || slices.Contains(order, "tracing") {
		return order
	}
	at := slices.Index(order, "recover") + 1
	return slices.Insert(order, at, "tracing")
}

// Issuer devolve o validador JWT (também emissor), ou nil sem segredo configurado.
func (s *Stack) Issuer() *authinfra.JWTValidator { return s.jwt }

// RouteStages devolve os estágios por rota, nesta ordem:
// autenticação obrigatória, papel/permissão, cache.
func (s *Stack) RouteStages(rt config.Route) []pipeline.Middleware {
	var mws []pipeline.Middleware
	if rt.Protected() {
		mws = append(mws, auth.RequireAuth(s.authOpts))
		req := authdomain.Requirement{Roles: rt.Roles, Permission: rt.Permission}
		if !req.IsZero() {
			mws = append(mws, s.guard.Require(req))
		}
	}
	if rt.Cache && s.cache != nil {
		mws = append(mws, s.cache)
	}
	return mws
}

// Handler monta o roteador: estágios globais, endpoints operacionais, as rotas
// configuradas apontando para target e, por fim, mount para rotas próprias da aplicação.
//
// Com fallback != nil, caminhos e métodos sem rota vão para ele apenas com os estágios globais.
func (s *Stack) Handler(target, fallback http.Handler, mount func(chi.Router)) (http.Handler, error) {
	mws, err := s.builder.Middlewares(s.Order())
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(mws...)

	r.Get("/health", health.Liveness())
	r.Get("/ready", health.Readiness(s.checks, health.WithLogger(s.logger)))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Handle("/metrics/summary", observability.SnapshotHandler(s.metrics))
	if s.rlStats != nil {
		r.Handle("/metrics/ratelimit", ratelimit.StatsHandler(s.rlStats))
	}
	if s.jwt != nil && s.jwt.Revocable() {
		r.With(auth.RequireAuth(s.authOpts)).Method(http.MethodPost, logoutPath, auth.Logout(s.jwt, s.logger))
	}

	if target != nil {
		for _, rt := range s.cfg.Routes {
			h := pipeline.Chain(target, s.RouteStages(rt)...)
			if len(rt.Methods) == 0 {
				r.Handle(rt.Pattern, h)
				continue
			}
			for _, m := range rt.Methods {
				r.Method(m, rt.Pattern, h)
			}
		}
	}

	if mount != nil {
		mount(r)
	}
	if fallback != nil {
		r.NotFound(fallback.ServeHTTP)
		r.MethodNotAllowed(fallback.ServeHTTP)
	}
	return r, nil
}

// Shutdown fecha stores em memória e descarrega o tracer.
func (s *Stack) Shutdown(ctx context.Context) error {
	var errs []error
	for _, c := range s.closers {
		if err := c(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
