package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ctxKey string

const (
	requestIDKey   ctxKey = "request_id"
	outcomeNameKey ctxKey = "outcome_name"
)

// RequestIDFromContext returns the request id if present.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDKey)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// requestIDMiddleware ensures every request has a request id.
// If the client supplies X-Request-Id, we keep it; otherwise we generate one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		w.Header().Set("X-Request-Id", rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// setOutcomeName records the resolved file name for the access log.
func setOutcomeName(ctx context.Context, name string) {
	if p, ok := ctx.Value(outcomeNameKey).(*string); ok {
		*p = name
	}
}

// loggingMiddleware logs one line per request and hands the outcome to
// the server's observers. Aborted requests are logged too, then the abort
// continues up to net/http.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rid := RequestIDFromContext(r.Context())

		var name string
		ctx := context.WithValue(r.Context(), outcomeNameKey, &name)

		lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			p := recover()
			status := lrw.status
			if p != nil {
				status = StatusAborted
			}

			out := Outcome{
				RequestID: rid,
				Time:      start.UTC(),
				Method:    r.Method,
				Path:      r.URL.Path,
				Name:      name,
				Status:    status,
				Bytes:     lrw.size,
				Duration:  time.Since(start),
				ClientIP:  getClientIP(r, s.cfg.TrustProxy),
				UserAgent: r.UserAgent(),
			}
			Info("request", map[string]any{
				"rid":    rid,
				"method": out.Method,
				"path":   out.Path,
				"status": out.Status,
				"ms":     out.Duration.Milliseconds(),
				"bytes":  out.Bytes,
				"ip":     out.ClientIP,
				"ua":     out.UserAgent,
			})
			s.observe(out)

			if p != nil {
				panic(p)
			}
		}()

		next.ServeHTTP(lrw, r.WithContext(ctx))
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status      int
	size        int64
	wroteHeader bool
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.size += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
