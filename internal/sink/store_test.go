package sink

import (
	"context"
	"testing"

	"github.com/nao1215/grantscan/internal/database"
)

func TestStoreSink(t *testing.T) {
	t.Parallel()

	store, err := database.Open(t.TempDir(), database.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	s := NewStoreSink(store)
	ctx := context.Background()

	r := Record{
		GrantName:       "Programa Juntos",
		Organization:    []string{"Government of Peru - MIDIS"},
		ApplicationLink: "https://www.gob.pe/juntos",
		Keywords:        []string{"peru", "rural"},
		Status:          "Active",
		Priority:        "HIGH",
		Source:          "peru_gov",
		RelevanceScore:  5.5,
	}
	action, err := s.Upsert(ctx, r)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if action != ActionCreated {
		t.Errorf("expected created, got %s", action)
	}

	r.Priority = "CRITICAL"
	r.RelevanceScore = 6.2
	if action, err = s.Upsert(ctx, r); err != nil || action != ActionUpdated {
		t.Fatalf("Upsert = %s, %v", action, err)
	}

	all, err := s.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 record, got %d", len(all))
	}
	got := all[0]
	if got.Priority != "CRITICAL" || got.RelevanceScore != 6.2 {
		t.Errorf("unexpected record %+v", got)
	}
	if len(got.Keywords) != 2 || got.Organization[0] != "Government of Peru - MIDIS" {
		t.Errorf("fields did not round trip: %+v", got)
	}
}
