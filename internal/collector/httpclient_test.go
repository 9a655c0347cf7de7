package collector

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestNewHTTPClient tests the client constructor.
func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	t.Run("direct client without proxy", func(t *testing.T) {
		t.Parallel()

		client, err := NewHTTPClient(ClientOptions{Timeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, expected 5s", client.Timeout)
		}
		if client.Jar == nil {
			t.Error("expected a cookie jar")
		}
	})

	t.Run("valid proxy address", func(t *testing.T) {
		t.Parallel()

		client, err := NewHTTPClient(ClientOptions{Timeout: time.Second, ProxyAddress: "127.0.0.1:1080"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client == nil {
			t.Fatal("expected non-nil client")
		}
	})

	t.Run("invalid proxy address returns error", func(t *testing.T) {
		t.Parallel()

		_, err := NewHTTPClient(ClientOptions{ProxyAddress: "127.0.0.1"})
		if !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("expected ErrInvalidProxyAddress, got %v", err)
		}
	})
}

// TestIsValidProxyAddress tests the proxy address validation function.
func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		address  string
		expected bool
	}{
		{"valid IPv4 with port", "127.0.0.1:1080", true},
		{"valid hostname with port", "proxy.example.com:1080", true},
		{"empty string", "", false},
		{"no port", "127.0.0.1", false},
		{"empty host", ":1080", false},
		{"empty port", "127.0.0.1:", false},
		{"port out of range", "127.0.0.1:70000", false},
		{"non-numeric port", "127.0.0.1:socks", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := isValidProxyAddress(tc.address); got != tc.expected {
				t.Errorf("isValidProxyAddress(%q) = %v, expected %v", tc.address, got, tc.expected)
			}
		})
	}
}

// TestWithHeaders tests header and cookie injection.
func TestWithHeaders(t *testing.T) {
	t.Parallel()

	t.Run("no headers returns the same client", func(t *testing.T) {
		t.Parallel()

		client := &http.Client{}
		if got := WithHeaders(client, "", nil); got != client {
			t.Error("expected the original client")
		}
	})

	t.Run("headers and cookie are sent", func(t *testing.T) {
		t.Parallel()

		var gotHeader, gotCookie string
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			gotHeader = r.Header.Get("X-Api-Version")
			gotCookie = r.Header.Get("Cookie")
		}))
		defer server.Close()

		client := WithHeaders(server.Client(), "session=abc", map[string]string{"X-Api-Version": "2"})
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if gotHeader != "2" {
			t.Errorf("X-Api-Version = %q, expected %q", gotHeader, "2")
		}
		if gotCookie != "session=abc" {
			t.Errorf("Cookie = %q, expected %q", gotCookie, "session=abc")
		}
	})

	t.Run("headers map is copied", func(t *testing.T) {
		t.Parallel()

		headers := map[string]string{"X-Key": "one"}
		client := WithHeaders(&http.Client{}, "", headers)
		headers["X-Key"] = "two"

		transport, ok := client.Transport.(*headerInjectingTransport)
		if !ok {
			t.Fatalf("unexpected transport type %T", client.Transport)
		}
		if transport.headers["X-Key"] != "one" {
			t.Errorf("header = %q, expected %q", transport.headers["X-Key"], "one")
		}
	})
}
