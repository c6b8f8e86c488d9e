package result

import (
	"testing"

	"github.com/kailas-cloud/supportbot/internal/domain/passage"
)

func node(id string) passage.Node {
	return passage.Reconstruct(id, "docs", "text "+id, nil)
}

func TestNew(t *testing.T) {
	s := New(node("n1"), 0.5)
	if s.ID() != "n1" {
		t.Errorf("ID() = %q", s.ID())
	}
	if s.Score() != 0.5 {
		t.Errorf("Score() = %f", s.Score())
	}
	if s.Node().Text() != "text n1" {
		t.Errorf("Node().Text() = %q", s.Node().Text())
	}
}

func TestWithScore(t *testing.T) {
	s := New(node("n1"), 0.5)
	r := s.WithScore(0.9)
	if r.Score() != 0.9 || s.Score() != 0.5 {
		t.Errorf("WithScore must not mutate the receiver: %f %f", s.Score(), r.Score())
	}
	if r.ID() != "n1" {
		t.Errorf("ID() = %q", r.ID())
	}
}

func TestTruncate(t *testing.T) {
	list := []Scored{New(node("a"), 3), New(node("b"), 2), New(node("c"), 1)}

	if got := Truncate(list, 2); len(got) != 2 || got[1].ID() != "b" {
		t.Errorf("Truncate(2) = %v", got)
	}
	if got := Truncate(list, 10); len(got) != 3 {
		t.Errorf("Truncate(10) len = %d", len(got))
	}
	if got := Truncate(list, 0); got == nil || len(got) != 0 {
		t.Errorf("Truncate(0) = %v, want empty non-nil", got)
	}
}

func TestDedup(t *testing.T) {
	list := []Scored{New(node("a"), 3), New(node("b"), 2), New(node("a"), 1)}
	got := Dedup(list)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID() != "a" || got[0].Score() != 3 {
		t.Errorf("first occurrence must be kept: %v", got[0])
	}
}
