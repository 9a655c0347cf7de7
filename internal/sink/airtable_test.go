package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"golang.org/x/time/rate"

	"github.com/nao1215/grantscan/internal/config"
)

// fakeAirtable is an in-memory Airtable table served over HTTP.
type fakeAirtable struct {
	t        *testing.T
	mu       sync.Mutex
	rows     []airtableRecord
	pageSize int
	methods  []string
}

func (f *fakeAirtable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer key-123" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"AUTHENTICATION_REQUIRED","message":"bad key"}}`))
		return
	}
	f.methods = append(f.methods, r.Method)

	const table = "/v0/app1/Grants"
	switch {
	case r.Method == http.MethodGet && r.URL.Path == table:
		f.list(w, r)
	case r.Method == http.MethodPost && r.URL.Path == table:
		var body airtableWrite
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode create: %v", err)
		}
		if !body.Typecast {
			f.t.Error("expected typecast")
		}
		id := fmt.Sprintf("rec%d", len(f.rows)+1)
		f.rows = append(f.rows, airtableRecord{ID: id, Fields: body.Fields})
		_ = json.NewEncoder(w).Encode(airtableRecord{ID: id, Fields: body.Fields})
	case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, table+"/"):
		id := strings.TrimPrefix(r.URL.Path, table+"/")
		var body airtableWrite
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode update: %v", err)
		}
		for i := range f.rows {
			if f.rows[i].ID == id {
				f.rows[i].Fields = body.Fields
				_ = json.NewEncoder(w).Encode(f.rows[i])
				return
			}
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAirtable) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if formula := q.Get("filterByFormula"); formula != "" {
		matches := make([]airtableRecord, 0)
		for _, row := range f.rows {
			if keyFormula(row.Fields) == formula {
				matches = append(matches, row)
			}
		}
		_ = json.NewEncoder(w).Encode(airtableList{Records: matches})
		return
	}

	start, _ := strconv.Atoi(q.Get("offset"))
	end := min(start+f.pageSize, len(f.rows))
	page := airtableList{Records: f.rows[start:end]}
	if end < len(f.rows) {
		page.Offset = strconv.Itoa(end)
	}
	_ = json.NewEncoder(w).Encode(page)
}

func newTestAirtable(t *testing.T, apiKey string) (*AirtableSink, *fakeAirtable) {
	t.Helper()

	fake := &fakeAirtable{t: t, pageSize: 2}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	s, err := NewAirtableSink(AirtableConfig{
		BaseURL: server.URL + "/v0/",
		APIKey:  apiKey,
		BaseID:  "app1",
	}, WithAirtableClient(server.Client()), WithRateLimit(rate.Inf))
	if err != nil {
		t.Fatalf("NewAirtableSink failed: %v", err)
	}
	return s, fake
}

func TestAirtableSink(t *testing.T) {
	t.Parallel()

	t.Run("creates then updates by application link", func(t *testing.T) {
		t.Parallel()

		s, fake := newTestAirtable(t, "key-123")
		ctx := context.Background()

		r := Record{GrantName: "Fund A", ApplicationLink: "https://example.org/it's-a", Status: "Active"}
		action, err := s.Upsert(ctx, r)
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if action != ActionCreated {
			t.Errorf("expected created, got %s", action)
		}

		r.Priority = "HIGH"
		action, err = s.Upsert(ctx, r)
		if err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		if action != ActionUpdated {
			t.Errorf("expected updated, got %s", action)
		}

		if len(fake.rows) != 1 || fake.rows[0].Fields.Priority != "HIGH" {
			t.Errorf("unexpected rows %+v", fake.rows)
		}
		expected := []string{http.MethodGet, http.MethodPost, http.MethodGet, http.MethodPatch}
		if strings.Join(fake.methods, ",") != strings.Join(expected, ",") {
			t.Errorf("methods = %v, expected %v", fake.methods, expected)
		}
	})

	t.Run("title key without link", func(t *testing.T) {
		t.Parallel()

		s, fake := newTestAirtable(t, "key-123")
		ctx := context.Background()

		for _, title := range []string{"Community Water Fund", "community  water fund"} {
			if _, err := s.Upsert(ctx, Record{GrantName: title}); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}
		// Both titles normalize to the same key.
		if len(fake.rows) != 1 {
			t.Errorf("expected 1 row, got %d", len(fake.rows))
		}
	})

	t.Run("read all pages", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestAirtable(t, "key-123")
		ctx := context.Background()

		for i := range 5 {
			r := Record{GrantName: fmt.Sprintf("Grant %d", i), ApplicationLink: fmt.Sprintf("https://example.org/%d", i)}
			if _, err := s.Upsert(ctx, r); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}
		}

		all, err := s.ReadAll(ctx)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("expected 5 records, got %d", len(all))
		}
		if all[4].GrantName != "Grant 4" {
			t.Errorf("last record = %q", all[4].GrantName)
		}
	})

	t.Run("api error", func(t *testing.T) {
		t.Parallel()

		s, _ := newTestAirtable(t, "wrong")
		_, err := s.Upsert(context.Background(), Record{GrantName: "Fund A"})
		if !errors.Is(err, ErrAirtable) {
			t.Fatalf("expected ErrAirtable, got %v", err)
		}
		if !strings.Contains(err.Error(), "bad key") {
			t.Errorf("expected the API message, got %v", err)
		}
	})
}

func TestNewAirtableSinkCredentials(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		cfg     AirtableConfig
		missing string
	}{
		{"no key", AirtableConfig{BaseID: "app1"}, config.EnvAirtableAPIKey},
		{"no base", AirtableConfig{APIKey: "key"}, config.EnvAirtableBaseID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewAirtableSink(tc.cfg)
			if !errors.Is(err, config.ErrMissingCredential) {
				t.Fatalf("expected ErrMissingCredential, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.missing) {
				t.Errorf("expected %s in %v", tc.missing, err)
			}
		})
	}
}

func TestEscapeFormula(t *testing.T) {
	t.Parallel()

	if got := escapeFormula(`it's a \ test`); got != `it\'s a \\ test` {
		t.Errorf("escapeFormula = %q", got)
	}
}
