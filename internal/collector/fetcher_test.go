package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetcherGet(t *testing.T) {
	t.Parallel()

	t.Run("sends user agent and returns body", func(t *testing.T) {
		t.Parallel()

		var gotUA, gotAccept string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUA = r.Header.Get("User-Agent")
			gotAccept = r.Header.Get("Accept")
			_, _ = w.Write([]byte("hello"))
		}))
		defer server.Close()

		f := NewFetcher(server.Client(), WithUserAgent("grantscan-test"))
		body, err := f.Get(context.Background(), server.URL, "text/html")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(body) != "hello" {
			t.Errorf("body = %q, expected %q", body, "hello")
		}
		if gotUA != "grantscan-test" {
			t.Errorf("User-Agent = %q", gotUA)
		}
		if gotAccept != "text/html" {
			t.Errorf("Accept = %q", gotAccept)
		}
	})

	t.Run("non-200 returns StatusError", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewFetcher(server.Client()).Get(context.Background(), server.URL, "")
		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected *StatusError, got %v", err)
		}
		if statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("StatusCode = %d", statusErr.StatusCode)
		}
	})

	t.Run("body is limited", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(strings.Repeat("x", 100)))
		}))
		defer server.Close()

		body, err := NewFetcher(server.Client(), WithMaxBodySize(10)).Get(context.Background(), server.URL, "")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if len(body) != 10 {
			t.Errorf("len(body) = %d, expected 10", len(body))
		}
	})

	t.Run("requests are spaced by the delay", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		defer server.Close()

		const delay = 100 * time.Millisecond
		f := NewFetcher(server.Client(), WithDelay(delay))

		start := time.Now()
		for range 3 {
			if _, err := f.Get(context.Background(), server.URL, ""); err != nil {
				t.Fatalf("Get failed: %v", err)
			}
		}
		// The first request goes out immediately, the next two wait.
		if elapsed := time.Since(start); elapsed < 2*delay-10*time.Millisecond {
			t.Errorf("3 requests took %v, expected at least %v", elapsed, 2*delay)
		}
	})

	t.Run("cancelled context stops the wait", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
		defer server.Close()

		f := NewFetcher(server.Client(), WithDelay(time.Hour))
		if _, err := f.Get(context.Background(), server.URL, ""); err != nil {
			t.Fatalf("first Get failed: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		if _, err := f.Get(ctx, server.URL, ""); err == nil {
			t.Fatal("expected an error from the cancelled wait")
		}
	})
}

func TestFetcherHead(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, expected HEAD", r.Method)
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	status, err := NewFetcher(server.Client()).Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if status != http.StatusForbidden {
		t.Errorf("status = %d, expected 403", status)
	}
}

func TestFetcherDoJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	t.Run("round trip with headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer k" {
				t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			data, _ := io.ReadAll(r.Body)
			var in payload
			if err := json.Unmarshal(data, &in); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			_ = json.NewEncoder(w).Encode(payload{Name: strings.ToUpper(in.Name)})
		}))
		defer server.Close()

		var out payload
		err := NewFetcher(server.Client()).DoJSON(context.Background(), http.MethodPost, server.URL,
			map[string]string{"Authorization": "Bearer k"}, payload{Name: "peru"}, &out)
		if err != nil {
			t.Fatalf("DoJSON failed: %v", err)
		}
		if out.Name != "PERU" {
			t.Errorf("Name = %q, expected PERU", out.Name)
		}
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		err := NewFetcher(server.Client()).DoJSON(context.Background(), http.MethodGet, server.URL, nil, nil, nil)
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401 StatusError, got %v", err)
		}
	})

	t.Run("empty body with output", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		var out payload
		if err := NewFetcher(server.Client()).DoJSON(context.Background(), http.MethodDelete, server.URL, nil, nil, &out); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
