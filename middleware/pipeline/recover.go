package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime"
)

const defaultStackSize = 4096

// Recover é a fronteira de erro mais externa: converte qualquer panic em
// 500 SERVER_ERROR sem expor mensagem interna nem stack ao cliente.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = Ensure(r)
			rw := NewResponseWriter(w)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := make([]byte, defaultStackSize)
				stack = stack[:runtime.Stack(stack, false)]
				logger.ErrorContext(r.Context(), "panic recovered",
					slog.String("panic", fmt.Sprint(rec)),
					slog.String("stack", string(stack)),
					slog.Bool("response_started", rw.Written()),
				)

				if rw.Written() {
					return
				}
				WriteError(rw, http.StatusInternalServerError, CodeServerError, "internal server error")
			}()

			next.ServeHTTP(rw, r)
		})
	}
}

// Fail registra err no RequestContext e responde 500 SERVER_ERROR.
// Handlers que preferem retornar erro em vez de panic usam esta função;
// a observabilidade classifica o erro da mesma forma que um panic.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = errors.New("pipeline: unspecified failure")
	}
	if rc := From(r.Context()); rc != nil {
		rc.setErr(err)
	}
	WriteError(w, http.StatusInternalServerError, CodeServerError, "internal server error")
}
