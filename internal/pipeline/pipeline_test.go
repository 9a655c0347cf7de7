package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/nao1215/grantscan/internal/model"
)

// funcStep runs fn under a fixed name.
type funcStep struct {
	name  string
	fn    func(ctx context.Context, session *Session) error
	calls int
}

func (s *funcStep) Do(ctx context.Context, session *Session) error {
	s.calls++
	if s.fn == nil {
		return nil
	}
	return s.fn(ctx, session)
}

func (s *funcStep) Name() string {
	return s.name
}

// dropFirst removes the first record of the session.
func dropFirst(name string) *funcStep {
	return &funcStep{name: name, fn: func(_ context.Context, session *Session) error {
		if len(session.Records) > 0 {
			session.Records = session.Records[1:]
		}
		return nil
	}}
}

func threeRecords() []*model.Opportunity {
	return []*model.Opportunity{{Title: "a"}, {Title: "b"}, {Title: "c"}}
}

func TestPipelineSteps(t *testing.T) {
	t.Parallel()

	p := New(WithSteps(&funcStep{name: "validate"}))
	p.AddStep(&funcStep{name: "score"})
	p.AddSteps(&funcStep{name: "filter"}, &funcStep{name: "rank"})

	if got := p.Steps(); !slices.Equal(got, []string{"validate", "score", "filter", "rank"}) {
		t.Errorf("Steps() = %v", got)
	}
	if New().logger == nil {
		t.Error("expected a default logger")
	}
}

func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("traces each step", func(t *testing.T) {
		t.Parallel()

		p := New(WithSteps(dropFirst("validate"), &funcStep{name: "score"}, dropFirst("filter")))
		session := NewSession(threeRecords())

		if err := p.Execute(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(session.Records) != 1 {
			t.Fatalf("expected 1 record left, got %d", len(session.Records))
		}

		want := []struct {
			name    string
			in      int
			dropped int
		}{
			{"validate", 3, 1},
			{"score", 2, 0},
			{"filter", 2, 1},
		}
		if len(session.Trace) != len(want) {
			t.Fatalf("expected %d trace entries, got %d", len(want), len(session.Trace))
		}
		for i, w := range want {
			got := session.Trace[i]
			if got.Name != w.name || got.In != w.in || got.Dropped() != w.dropped {
				t.Errorf("trace[%d] = %+v, want name=%s in=%d dropped=%d", i, got, w.name, w.in, w.dropped)
			}
			if got.Elapsed < 0 {
				t.Errorf("trace[%d] has negative elapsed time", i)
			}
		}
	})

	t.Run("stops at the failing step", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("scorer unavailable")
		after := &funcStep{name: "rank"}
		p := New(WithSteps(
			&funcStep{name: "validate"},
			&funcStep{name: "score", fn: func(context.Context, *Session) error { return cause }},
			after,
		))
		session := NewSession(threeRecords())

		err := p.Execute(context.Background(), session)
		if !errors.Is(err, cause) {
			t.Fatalf("expected the step error, got %v", err)
		}
		if err.Error() != "score: scorer unavailable" {
			t.Errorf("error = %q", err.Error())
		}
		if after.calls != 0 {
			t.Error("steps after a failure must not run")
		}
		if len(session.Trace) != 1 || session.Trace[0].Name != "validate" {
			t.Errorf("Trace = %+v", session.Trace)
		}
	})

	t.Run("checks the context between steps", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		second := &funcStep{name: "second"}
		p := New(WithSteps(
			&funcStep{name: "first", fn: func(context.Context, *Session) error {
				cancel()
				return nil
			}},
			second,
		))

		if err := p.Execute(ctx, NewSession(nil)); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if second.calls != 0 {
			t.Error("step should not run after cancellation")
		}
	})

	t.Run("empty pipeline", func(t *testing.T) {
		t.Parallel()

		session := NewSession(threeRecords())
		if err := New().Execute(context.Background(), session); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(session.Records) != 3 || len(session.Trace) != 0 {
			t.Errorf("unexpected session %+v", session)
		}
	})
}

func TestNewSession(t *testing.T) {
	t.Parallel()

	s := NewSession([]*model.Opportunity{{Title: "a"}, nil, {Title: "b"}})
	if len(s.Records) != 2 {
		t.Errorf("expected nil records dropped, got %d", len(s.Records))
	}
	if s.Stats.Collected != 3 {
		t.Errorf("Collected = %d", s.Stats.Collected)
	}
	if s.Trace == nil {
		t.Error("Trace must be empty, not nil")
	}
}
