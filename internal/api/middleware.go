package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
)

// Middleware — функция-обёртка для http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware в порядке слева направо.
// Chain(m1, m2)(handler) = m1(m2(handler))
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging логирует запросы к административному API.
//
// route — шаблон маршрута ServeMux, job — имя из /jobs/{name}.
// Уровень по статусу: 5xx — Error, 4xx — Warn, иначе Debug.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rw, r)

			attrs := []any{
				"route", r.Pattern,
				"status", rw.status,
				"bytes", rw.bytes,
				"duration", time.Since(start),
				"remote_addr", r.RemoteAddr,
			}
			if job := r.PathValue("name"); job != "" {
				attrs = append(attrs, "job", job)
			}

			switch {
			case rw.status >= http.StatusInternalServerError:
				logger.Error("admin api request failed", attrs...)
			case rw.status >= http.StatusBadRequest:
				logger.Warn("admin api request rejected", attrs...)
			default:
				logger.Debug("admin api request", attrs...)
			}
		})
	}
}

// Recovery превращает панику обработчика в 500.
// http.ErrAbortHandler пробрасывается дальше: им обработчик обрывает ответ.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = errors.Newf("%v", rec)
				}
				err = errors.Wrapf(err, "panic in %s %s", r.Method, r.URL.Path)

				logger.Error("panic recovered",
					"error", err,
					"route", r.Pattern,
					"stack", string(debug.Stack()),
				)
				Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter запоминает статус и размер ответа.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}
