package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) payload {
	t.Helper()
	var p payload
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

func TestHealthz_AlwaysOK(t *testing.T) {
	h := New(Checker{Name: "doomed", Check: func(context.Context) error {
		return errors.New("down")
	}})

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}

	p := decode(t, rec)
	if p.Status != "ok" {
		t.Fatalf("status = %q, want ok", p.Status)
	}
	if p.Uptime == "" {
		t.Fatal("healthz reports uptime")
	}
}

func TestReadyz_AllPass(t *testing.T) {
	h := New(
		Checker{Name: "postgres", Check: func(context.Context) error { return nil }},
		Checker{Name: "providers", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	p := decode(t, rec)
	if p.Status != "ok" {
		t.Fatalf("status = %q, want ok", p.Status)
	}
	for _, name := range []string{"postgres", "providers"} {
		c, ok := p.Checks[name]
		if !ok {
			t.Fatalf("missing check %q", name)
		}
		if c.Status != "ok" || c.Error != "" {
			t.Fatalf("check %q = %+v, want ok", name, c)
		}
		if c.Elapsed == "" {
			t.Fatalf("check %q reports no elapsed time", name)
		}
	}
}

func TestReadyz_OneFailure(t *testing.T) {
	h := New(
		Checker{Name: "postgres", Check: func(context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "providers", Check: func(context.Context) error { return nil }},
	)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	p := decode(t, rec)
	if p.Status != "fail" {
		t.Fatalf("status = %q, want fail", p.Status)
	}
	if c := p.Checks["postgres"]; c.Status != "fail" || c.Error != "connection refused" {
		t.Fatalf("postgres check = %+v", c)
	}
	if c := p.Checks["providers"]; c.Status != "ok" {
		t.Fatalf("providers check = %+v, one bad dependency must not taint the rest", c)
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	rec := httptest.NewRecorder()
	New().Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if p := decode(t, rec); p.Status != "ok" {
		t.Fatalf("status = %q, want ok", p.Status)
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	// Two checks that each wait for the other to start can only both pass
	// when they run at the same time.
	gate := make(chan struct{})
	var arrived atomic.Int32
	meet := func(context.Context) error {
		if arrived.Add(1) == 2 {
			close(gate)
		}
		select {
		case <-gate:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("peer never started")
		}
	}

	h := New(
		Checker{Name: "a", Check: meet},
		Checker{Name: "b", Check: meet},
	)
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(Checker{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestRegister_Routes(t *testing.T) {
	mux := http.NewServeMux()
	New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s = %d, want 200", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /healthz = %d, want 405", rec.Code)
	}
}
