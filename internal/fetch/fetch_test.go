package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"briefly/internal/discoveryerr"
)

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{MinHostSpacing: time.Millisecond})
	result, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Errorf("expected 200, got %d", result.Status)
	}
	if string(result.Body) != "<html><body>hello</body></html>" {
		t.Errorf("unexpected body: %s", result.Body)
	}
}

func TestFetchNonRetried4xx(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Config{MinHostSpacing: time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err == nil {
		t.Fatal("expected an error for 404")
	}
	de, ok := discoveryerr.As(err)
	if !ok || de.Kind != discoveryerr.HTTPClient {
		t.Errorf("expected HTTP_CLIENT kind, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable 4xx, got %d", calls)
	}
}

func TestFetchRetries5xxThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(Config{MinHostSpacing: time.Millisecond})
	result, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if result.Status != http.StatusOK {
		t.Errorf("expected eventual 200, got %d", result.Status)
	}
	if calls < 2 {
		t.Errorf("expected at least 2 calls (one retry), got %d", calls)
	}
}

func TestFetchTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := New(Config{MinHostSpacing: time.Millisecond, MaxBodyBytes: 100})
	_, err := f.Fetch(context.Background(), srv.URL, Options{})
	if err == nil {
		t.Fatal("expected TOO_LARGE error")
	}
	de, ok := discoveryerr.As(err)
	if !ok || de.Kind != discoveryerr.TooLarge {
		t.Errorf("expected TOO_LARGE kind, got %v", err)
	}
}

func TestFetchPerHostRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := New(Config{MinHostSpacing: 200 * time.Millisecond})

	start := time.Now()
	if _, err := f.Fetch(context.Background(), srv.URL, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 150*time.Millisecond {
		t.Errorf("expected the second fetch to wait for the rate limiter, elapsed=%s", elapsed)
	}
}
