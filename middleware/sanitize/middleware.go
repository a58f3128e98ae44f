package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"middleware-pipeline/middleware/pipeline"
)

const (
	DefaultMaxUploadBytes int64 = 5 << 20
	DefaultMaxBodyBytes   int64 = 10 << 20
)

var DefaultSkipFields = []string{"password", "password_confirmation", "current_password"}

var (
	errFileTooLarge = errors.New("sanitize: uploaded file too large")
	errNotInspected = errors.New("sanitize: multipart larger than the inspection window")
)

type Options struct {
	// SkipFields não são alterados (senhas precisam chegar intactas ao hash).
	SkipFields []string

	// MaxUploadBytes é o teto por arquivo em multipart/form-data.
	MaxUploadBytes int64

	// MaxBodyBytes limita quanto de um corpo JSON/form é lido para limpeza e
	// quanto de um multipart é retido para a checagem de uploads.
	// Corpos maiores seguem sem alteração.
	MaxBodyBytes int64

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.SkipFields == nil {
		o.SkipFields = DefaultSkipFields
	}
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Middleware limpa query string, corpos JSON e formulários urlencoded antes do handler,
// e rejeita uploads acima de MaxUploadBytes com 400 FILE_SIZE_EXCEEDED.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	opts.defaults()
	s := New(opts.SkipFields...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				if q, changed := s.values(r.URL.Query()); changed {
					r.URL.RawQuery = q.Encode()
				}
			}

			media, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			switch {
			case r.Body == nil || r.Body == http.NoBody:
			case media == "application/json" || strings.HasSuffix(media, "+json"):
				s.rewriteBody(r, opts, sanitizeJSON)
			case media == "application/x-www-form-urlencoded":
				s.rewriteBody(r, opts, sanitizeForm)
			case media == "multipart/form-data":
				err := checkUploads(r, params["boundary"], opts.MaxUploadBytes, opts.MaxBodyBytes)
				if errors.Is(err, errFileTooLarge) {
					pipeline.WriteError(w, http.StatusBadRequest, pipeline.CodeFileSizeExceeded,
						fmt.Sprintf("file size exceeds the maximum of %d bytes", opts.MaxUploadBytes))
					return
				}
				if err != nil {
					opts.Logger.DebugContext(r.Context(), "multipart body not inspected", slog.String("error", err.Error()))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Sanitizer) values(in url.Values) (url.Values, bool) {
	changed := false
	for k, vs := range in {
		if s.Skips(k) {
			continue
		}
		for i, v := range vs {
			if c := s.String(v); c != v {
				vs[i] = c
				changed = true
			}
		}
	}
	return in, changed
}

type bodyFunc func(s *Sanitizer, body []byte) ([]byte, error)

// rewriteBody troca o corpo pela versão limpa. Em qualquer falha o corpo original segue.
func (s *Sanitizer) rewriteBody(r *http.Request, opts Options, fn bodyFunc) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, opts.MaxBodyBytes+1))
	if err != nil || int64(len(raw)) > opts.MaxBodyBytes {
		r.Body = readCloser{io.MultiReader(bytes.NewReader(raw), r.Body), r.Body}
		return
	}
	_ = r.Body.Close()

	clean, err := fn(s, raw)
	if err != nil {
		opts.Logger.DebugContext(r.Context(), "body left unsanitized", slog.String("error", err.Error()))
		clean = raw
	}
	r.Body = io.NopCloser(bytes.NewReader(clean))
	r.ContentLength = int64(len(clean))
	r.Header.Set("Content-Length", strconv.Itoa(len(clean)))
}

func sanitizeJSON(s *Sanitizer, body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s.Value(v)); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func sanitizeForm(s *Sanitizer, body []byte) ([]byte, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	form, _ = s.values(form)
	return []byte(form.Encode()), nil
}

// checkUploads lê as partes do multipart medindo cada arquivo e devolve o corpo intacto
// para o handler (ou proxy) seguinte. No máximo window bytes ficam retidos; além
// disso a checagem para e o restante segue sem inspeção.
func checkUploads(r *http.Request, boundary string, limit, window int64) error {
	if boundary == "" {
		return errors.New("sanitize: multipart without boundary")
	}

	var seen bytes.Buffer
	body := r.Body
	defer func() {
		r.Body = readCloser{io.MultiReader(bytes.NewReader(seen.Bytes()), body), body}
	}()

	mr := multipart.NewReader(io.TeeReader(io.LimitReader(body, window+1), &seen), boundary)
	exhausted := func() bool { return int64(seen.Len()) > window }
	for {
		part, err := mr.NextPart()
		if exhausted() {
			return errNotInspected
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sanitize: read multipart: %w", err)
		}
		n, err := io.Copy(io.Discard, io.LimitReader(part, limit+1))
		if part.FileName() != "" && n > limit {
			return errFileTooLarge
		}
		if exhausted() {
			return errNotInspected
		}
		if err != nil {
			return fmt.Errorf("sanitize: read part: %w", err)
		}
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
