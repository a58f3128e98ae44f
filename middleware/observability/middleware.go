package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"

	"middleware-pipeline/middleware/observability/application"
	"middleware-pipeline/middleware/observability/domain"
	"middleware-pipeline/middleware/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	HeaderRequestID    = "X-Request-ID"
	HeaderResponseTime = "X-Response-Time"

	DefaultMaxBodyLog = 64 << 10
	maxRequestIDLen   = 128
)

var DefaultExcludedPaths = []string{"/health", "/healthz", "/ready", "/metrics"}

// RouteFunc devolve o padrão de rota da requisição, depois de servida.
type RouteFunc func(r *http.Request) string

// ChiRoute lê o padrão registrado no chi (ex.: /api/students/{id}).
func ChiRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

type Options struct {
	Recorder *application.Recorder
	Redactor *application.Redactor

	SlowThreshold time.Duration
	// ExcludedPaths não geram log nem métrica (casam por segmento).
	ExcludedPaths []string
	// MaxBodyLog é quanto do corpo da requisição entra no log. Negativo desliga.
	MaxBodyLog int

	TrustProxyHeaders bool
	Route             RouteFunc

	Logger *slog.Logger
	Now    func() time.Time
}

func (o *Options) defaults() {
	if o.Redactor == nil {
		o.Redactor = application.NewRedactor(0)
	}
	if o.SlowThreshold <= 0 {
		o.SlowThreshold = application.DefaultSlowThreshold
	}
	if o.ExcludedPaths == nil {
		o.ExcludedPaths = DefaultExcludedPaths
	}
	if o.MaxBodyLog == 0 {
		o.MaxBodyLog = DefaultMaxBodyLog
	}
	if o.Route == nil {
		o.Route = ChiRoute
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

func excluded(p string, list []string) bool {
	for _, e := range list {
		e = strings.TrimSuffix(e, "/")
		if p == e || strings.HasPrefix(p, e+"/") {
			return true
		}
	}
	return false
}

// validRequestID aceita ids de até 128 caracteres em [A-Za-z0-9._-].
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	opts.defaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excluded(r.URL.Path, opts.ExcludedPaths) {
				next.ServeHTTP(w, r)
				return
			}

			start := opts.Now()
			r, rc := pipeline.Ensure(r)

			reqID := r.Header.Get(HeaderRequestID)
			if !validRequestID(reqID) {
				reqID = uuid.NewString()
			}
			rc.SetRequestID(reqID)
			rc.SetDevice(pipeline.Device{
				UserAgent: r.UserAgent(),
				ClientIP:  pipeline.ClientIP(r, opts.TrustProxyHeaders),
			})

			rw := pipeline.NewResponseWriter(w)
			rw.OnBeforeWrite(func() {
				rw.Header().Set(HeaderRequestID, reqID)
				rw.Header().Set(HeaderResponseTime, formatMillis(opts.Now().Sub(start)))
			})

			body := captureBody(r, opts.MaxBodyLog)

			defer func() {
				rec := recover()
				if rec == nil {
					finish(r, rw, rc, opts, start, body, rc.Err(), "")
					return
				}
				loc := panicLocation()
				finish(r, rw, rc, opts, start, body, rec, loc)
				panic(rec)
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// finish registra a amostra e emite o log. failure é o valor do panic ou o erro de pipeline.Fail.
func finish(r *http.Request, rw *pipeline.ResponseWriter, rc *pipeline.RequestContext, opts Options,
	start time.Time, body []byte, failure any, location string,
) {
	elapsed := opts.Now().Sub(start)
	status := rw.Status()
	if location != "" && !rw.Written() {
		// o estágio de recuperação vai responder 500
		status = http.StatusInternalServerError
	}
	class := application.Classify(failure)

	sample := domain.Sample{
		Method:     r.Method,
		Path:       r.URL.Path,
		Route:      opts.Route(r),
		Status:     status,
		Duration:   elapsed,
		ErrorClass: class,
		At:         start,
	}
	opts.Recorder.Record(r.Context(), sample)

	attrs := []slog.Attr{
		slog.String("request_id", rc.RequestID()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("route", sample.Route),
		slog.Int("status", status),
		slog.Int64("bytes", rw.Size()),
		slog.Float64("duration_ms", millis(elapsed)),
		slog.String("ip", rc.Device().ClientIP),
		slog.String("user_agent", rc.Device().UserAgent),
	}
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.Any("query", opts.Redactor.Values(r.URL.Query())))
	}
	attrs = append(attrs, slog.Any("headers", opts.Redactor.Values(r.Header)))
	if b := bodyForLog(opts.Redactor, r.Header.Get("Content-Type"), body); b != nil {
		attrs = append(attrs, slog.Any("body", b))
	}
	if id, ok := rc.Identity(); ok {
		attrs = append(attrs, slog.String("user_id", id.UserID))
	}
	if class != domain.ClassNone {
		attrs = append(attrs,
			slog.String("error.class", string(class)),
			slog.String("error.type", fmt.Sprintf("%T", failure)),
			slog.String("error.message", fmt.Sprint(failure)),
		)
		if location != "" {
			attrs = append(attrs, slog.String("error.location", location))
		}
	}

	level := application.Severity(status, class != domain.ClassNone, elapsed, opts.SlowThreshold)
	opts.Logger.LogAttrs(r.Context(), level, "http request", attrs...)
}

// captureBody lê até limit bytes e devolve o corpo intacto ao handler.
func captureBody(r *http.Request, limit int) []byte {
	if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	head, err := io.ReadAll(io.LimitReader(r.Body, int64(limit)))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	if err != nil {
		return nil
	}
	return head
}

// bodyForLog só registra JSON e formulários, sempre redigidos.
func bodyForLog(red *application.Redactor, contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	media, _, _ := mime.ParseMediaType(contentType)
	switch {
	case media == "application/json" || strings.HasSuffix(media, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return "[unparseable json, " + strconv.Itoa(len(body)) + " bytes]"
		}
		return red.Value(v)
	case media == "application/x-www-form-urlencoded":
		form, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		return red.Values(form)
	default:
		return "[" + strconv.Itoa(len(body)) + " bytes]"
	}
}

// panicLocation acha o arquivo:linha que chamou panic, a partir do defer.
func panicLocation() string {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	afterPanic := false
	for {
		f, more := frames.Next()
		if f.Function == "runtime.gopanic" {
			afterPanic = true
		} else if afterPanic && !strings.HasPrefix(f.Function, "runtime.") && !strings.HasPrefix(f.Function, "internal/runtime/") {
			return f.File + ":" + strconv.Itoa(f.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(millis(d), 'f', 2, 64) + "ms"
}
