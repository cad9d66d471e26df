package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rr.Header().Get("X-Request-Id") != seen {
		t.Errorf("generated id %q not echoed (header %q)", seen, rr.Header().Get("X-Request-Id"))
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "client-id")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if seen != "client-id" {
		t.Errorf("client id not kept, got %q", seen)
	}
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestLoggingMiddleware_Outcome(t *testing.T) {
	srv, _ := newTestServer(t)

	var got Outcome
	h := srv.loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setOutcomeName(r.Context(), "report.pdf")
		w.WriteHeader(http.StatusConflict)
	}))

	req := httptest.NewRequest(http.MethodPost, "/report.pdf", nil)
	req.Header.Set("User-Agent", "curl/8.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	srv.events.mu.Lock()
	if n := len(srv.events.history); n != 1 {
		srv.events.mu.Unlock()
		t.Fatalf("history has %d events, want 1", n)
	}
	raw := srv.events.history[0]
	srv.events.mu.Unlock()

	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "report.pdf" || got.Status != http.StatusConflict || got.Method != http.MethodPost {
		t.Errorf("unexpected outcome: %+v", got)
	}
	if got.UserAgent != "curl/8.0" || got.ClientIP != "192.0.2.1" {
		t.Errorf("client fields: ua=%q ip=%q", got.UserAgent, got.ClientIP)
	}
}

func TestLoggingMiddleware_ClientIPBehindProxy(t *testing.T) {
	for _, trust := range []bool{false, true} {
		srv, _ := newTestServer(t, func(c *Config) { c.TrustProxy = trust })
		h := srv.loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		h.ServeHTTP(httptest.NewRecorder(), req)

		srv.events.mu.Lock()
		raw := srv.events.history[len(srv.events.history)-1]
		srv.events.mu.Unlock()

		var got Outcome
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatal(err)
		}
		want := "192.0.2.1"
		if trust {
			want = "203.0.113.9"
		}
		if got.ClientIP != want {
			t.Errorf("trust=%v: ClientIP = %q, want %q", trust, got.ClientIP, want)
		}
	}
}

func TestLoggingMiddleware_AbortRecorded(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	func() {
		defer func() {
			if p := recover(); p != http.ErrAbortHandler {
				t.Fatalf("panic = %v, want ErrAbortHandler re-raised", p)
			}
		}()
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	}()

	if got := srv.Metrics().Snapshot().RequestsAborted; got != 1 {
		t.Errorf("RequestsAborted = %d, want 1", got)
	}
}
