package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"middleware-pipeline/middleware/pipeline"
	"middleware-pipeline/middleware/respcache/application"
	"middleware-pipeline/middleware/respcache/domain"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	headerCache = "X-Cache"
	DefaultTTL  = 5 * time.Minute
)

// cabeçalhos que não fazem sentido reproduzir a partir do cache
var unstoredHeaders = []string{
	"Connection", "Keep-Alive", "Transfer-Encoding", "Date", "Content-Length",
	"X-Request-Id", "X-Response-Time", "X-Cache", "Age",
	"X-Ratelimit-Limit", "X-Ratelimit-Remaining", "X-Ratelimit-Reset",
}

type Options struct {
	Store    domain.Store
	TTL      time.Duration
	Strategy domain.Strategy

	// ExcludedPrefixes nunca são cacheados. Default: application.DefaultExcludedPrefixes.
	ExcludedPrefixes []string

	// ETag grava um ETag forte do corpo e responde 304 a If-None-Match.
	ETag bool

	// SingleFlight junta misses concorrentes da mesma chave em uma ida ao downstream.
	SingleFlight bool

	// InvalidateOnWrite apaga o recurso após POST/PUT/PATCH/DELETE 2xx.
	// Exige um Store que implemente domain.Tagger.
	InvalidateOnWrite bool
	ResourceDepth     int

	// Timeout limita cada chamada ao store.
	Timeout time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if !o.Strategy.Valid() {
		o.Strategy = domain.StrategyShared
	}
	if o.ExcludedPrefixes == nil {
		o.ExcludedPrefixes = application.DefaultExcludedPrefixes
	}
	if o.Timeout <= 0 {
		o.Timeout = 100 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type cache struct {
	opts   Options
	svc    application.Service
	group  singleflight.Group
	errLog *rate.Limiter
}

// Middleware devolve o estágio de cache de resposta.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	opts.defaults()
	c := &cache{
		opts: opts,
		svc: application.Service{
			Store:         opts.Store,
			TTL:           opts.TTL,
			ResourceDepth: opts.ResourceDepth,
			Tagging:       opts.InvalidateOnWrite,
			Now:           opts.Now,
		},
		// no máximo um log de falha do store a cada 10s
		errLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, rc := pipeline.Ensure(r)

			switch r.Method {
			case http.MethodGet, http.MethodHead:
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
				if c.opts.InvalidateOnWrite {
					c.serveWrite(w, r, next)
					return
				}
				next.ServeHTTP(w, r)
				return
			default:
				next.ServeHTTP(w, r)
				return
			}

			user, ok := c.eligible(r, rc)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := application.Key(r.Method, r.URL.Path, r.URL.Query(), user)
			rc.SetCacheKey(key)

			ctx, cancel := context.WithTimeout(r.Context(), c.opts.Timeout)
			entry, hit, err := c.svc.Lookup(ctx, key)
			cancel()
			if err != nil {
				c.storeError(r.Context(), "cache lookup failed", err)
			}
			if hit {
				c.replay(w, r, entry)
				return
			}

			c.serveMiss(w, r, next, key)
		})
	}
}

// eligible aplica o portão de requisição e devolve o usuário que entra na chave.
func (c *cache) eligible(r *http.Request, rc *pipeline.RequestContext) (string, bool) {
	if application.Excluded(r.URL.Path, c.opts.ExcludedPrefixes) {
		return "", false
	}
	if application.CacheControlHas(r.Header.Get("Cache-Control"), "no-store") {
		return "", false
	}

	hasAuth := r.Header.Get("Authorization") != ""
	if c.opts.Strategy == domain.StrategyShared {
		return "", !hasAuth
	}

	if id, ok := rc.Identity(); ok {
		return id.UserID, true
	}
	return "", !hasAuth
}

func (c *cache) serveMiss(w http.ResponseWriter, r *http.Request, next http.Handler, key string) {
	run := func() captured {
		rec := newRecorder()
		next.ServeHTTP(rec, r)
		res := rec.result()

		if r.Method == http.MethodGet && application.CacheableResponse(res.status, res.header) {
			if c.opts.ETag {
				res.header.Set("ETag", etagOf(res.body))
			}
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), c.opts.Timeout)
			err := c.svc.Save(ctx, key, r.URL.Path, domain.Entry{
				Status:   res.status,
				Header:   storedHeader(res.header),
				Body:     res.body,
				StoredAt: c.opts.Now(),
			})
			cancel()
			if err != nil {
				c.storeError(r.Context(), "cache store failed", err)
			}
			res.header.Set("Cache-Control", c.cacheControl())
		}
		return res
	}

	var res captured
	if c.opts.SingleFlight {
		// HEAD não grava nem traz corpo: nunca divide o voo com GET.
		v, _, _ := c.group.Do(r.Method+" "+key, func() (any, error) { return run(), nil })
		res = v.(captured)
	} else {
		res = run()
	}

	h := w.Header()
	for k, vs := range res.header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set(headerCache, "MISS")
	w.WriteHeader(res.status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(res.body)
	}
}

func (c *cache) replay(w http.ResponseWriter, r *http.Request, e domain.Entry) {
	h := w.Header()
	for k, vs := range e.Header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set(headerCache, "HIT")
	h.Set("Age", strconv.FormatInt(c.svc.Age(e), 10))
	h.Set("Cache-Control", c.cacheControl())

	if etag := h.Get("ETag"); c.opts.ETag && etag != "" && etagMatches(r.Header.Get("If-None-Match"), etag) {
		h.Del("Content-Type")
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	w.WriteHeader(e.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(e.Body)
	}
}

func (c *cache) serveWrite(w http.ResponseWriter, r *http.Request, next http.Handler) {
	sw := &statusWriter{ResponseWriter: w}
	next.ServeHTTP(sw, r)
	if sw.status < 200 || sw.status >= 300 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), c.opts.Timeout)
	defer cancel()
	n, err := c.svc.InvalidateResource(ctx, r.URL.Path)
	if err != nil {
		c.storeError(r.Context(), "cache invalidation failed", err)
		return
	}
	c.opts.Logger.DebugContext(r.Context(), "cache invalidated",
		slog.String("resource", application.ResourceTag(r.URL.Path, c.opts.ResourceDepth)),
		slog.Int("entries", n),
	)
}

func (c *cache) cacheControl() string {
	scope := "public"
	if c.opts.Strategy == domain.StrategyPersonalized {
		scope = "private"
	}
	return scope + ", max-age=" + strconv.Itoa(int(c.opts.TTL/time.Second))
}

func (c *cache) storeError(ctx context.Context, msg string, err error) {
	if c.errLog.Allow() {
		c.opts.Logger.DebugContext(ctx, msg, slog.String("error", err.Error()))
	}
}

func storedHeader(h http.Header) map[string][]string {
	out := h.Clone()
	for _, k := range unstoredHeaders {
		delete(out, http.CanonicalHeaderKey(k))
	}
	return out
}

func etagOf(body []byte) string {
	sum := sha256.Sum256(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

// etagMatches trata lista separada por vírgulas, "*" e o prefixo fraco W/.
func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for cand := range strings.SplitSeq(ifNoneMatch, ",") {
		cand = strings.TrimPrefix(strings.TrimSpace(cand), "W/")
		if cand == "*" || cand == etag {
			return true
		}
	}
	return false
}
