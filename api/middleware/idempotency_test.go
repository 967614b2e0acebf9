package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderlyhq/orderly-backend/pkg/logger"
)

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: map[string]string{}}
}

func (s *memoryIdempotencyStore) IdempotencyKey(scope, key string) string {
	return scope + "|" + key
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memoryIdempotencyStore) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.keys[key]; exists {
		return false, nil
	}
	s.keys[key] = value
	return true, nil
}

func (s *memoryIdempotencyStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}

func idempotencyTestRouter(store *memoryIdempotencyStore, calls *int) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	r := chi.NewRouter()
	r.Use(Idempotency(store, logg))
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`{"data":"read"}`))
			})
			r.Post("/{orderId}/status", func(w http.ResponseWriter, _ *http.Request) {
				*calls++
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{"data":{"status":"accepted"}}`))
			})
		})
	})
	return r
}

func TestRouteTTLSelection(t *testing.T) {
	cases := []struct {
		name    string
		method  string
		path    string
		ttl     time.Duration
		guarded bool
	}{
		{"checkout", http.MethodPost, "/api/v1/storefront/marios/checkout", criticalIdempotencyTTL, true},
		{"refund", http.MethodPost, "/api/v1/orders/ord-1/refund", criticalIdempotencyTTL, true},
		{"status", http.MethodPost, "/api/v1/orders/ord-1/status", defaultIdempotencyTTL, true},
		{"dispatch", http.MethodPost, "/api/v1/orders/ord-1/dispatch", defaultIdempotencyTTL, true},
		{"delivery cancel", http.MethodPost, "/api/v1/orders/ord-1/delivery/cancel", defaultIdempotencyTTL, true},
		{"onboard", http.MethodPost, "/api/v1/organization/payments/onboard", defaultIdempotencyTTL, true},
		{"promos", http.MethodPost, "/api/v1/promos", defaultIdempotencyTTL, true},
		{"notification read", http.MethodPost, "/api/v1/notifications/notif-1/read", defaultIdempotencyTTL, true},
		{"read all", http.MethodPost, "/api/v1/notifications/read-all", defaultIdempotencyTTL, true},
		{"order read", http.MethodGet, "/api/v1/orders/ord-1", 0, false},
		{"menu write", http.MethodPost, "/api/v1/menu/items", 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ttl, ok := routeTTL(tc.method, tc.path)
			if ok != tc.guarded {
				t.Fatalf("guarded=%v, want %v", ok, tc.guarded)
			}
			if ttl != tc.ttl {
				t.Fatalf("ttl=%v, want %v", ttl, tc.ttl)
			}
		})
	}
}

func TestIdempotencyRequiresKeyOnGuardedRoutes(t *testing.T) {
	var calls int
	router := idempotencyTestRouter(newMemoryIdempotencyStore(), &calls)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/status",
		strings.NewReader(`{"to_status":"accepted"}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if calls != 0 {
		t.Fatal("handler must not run without an idempotency key")
	}
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls int
	router := idempotencyTestRouter(newMemoryIdempotencyStore(), &calls)
	body := `{"to_status":"accepted"}`

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/status", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	router.ServeHTTP(first, req)

	if first.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", first.Code)
	}
	if calls != 1 {
		t.Fatalf("expected one handler run, got %d", calls)
	}

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/status", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "key-1")
	router.ServeHTTP(second, req)

	if second.Code != http.StatusOK {
		t.Fatalf("unexpected replay status %d", second.Code)
	}
	if calls != 1 {
		t.Fatalf("replay must not rerun the handler, got %d runs", calls)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", first.Body.String(), second.Body.String())
	}
	if ct := second.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("replay lost content type, got %q", ct)
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	var calls int
	router := idempotencyTestRouter(newMemoryIdempotencyStore(), &calls)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/status",
		strings.NewReader(`{"to_status":"accepted"}`))
	first.Header.Set("Idempotency-Key", "key-1")
	router.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/status",
		strings.NewReader(`{"to_status":"canceled"}`))
	second.Header.Set("Idempotency-Key", "key-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, second)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if calls != 1 {
		t.Fatalf("conflicting reuse must not rerun the handler, got %d runs", calls)
	}
}

func TestIdempotencyIgnoresUnguardedRoutes(t *testing.T) {
	var calls int
	router := idempotencyTestRouter(newMemoryIdempotencyStore(), &calls)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord-1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	var calls int
	store := newMemoryIdempotencyStore()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	r := chi.NewRouter()
	r.Use(Idempotency(store, logg))
	r.Post("/api/v1/orders/{orderId}/status", func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(`{"data":null}`))
	})

	send := func(userID string) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/ord-1/status",
			strings.NewReader(`{"to_status":"accepted"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		req = req.WithContext(WithUserID(req.Context(), userID))
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	send("user-a")
	send("user-b")

	if calls != 2 {
		t.Fatalf("keys must be scoped per user, got %d handler runs", calls)
	}
}
