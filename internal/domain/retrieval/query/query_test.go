package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

func TestNew_Empty(t *testing.T) {
	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := New(q, nil)
		if !errors.Is(err, domain.ErrInvalidQuery) {
			t.Errorf("New(%q) err = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestNew_TooLong(t *testing.T) {
	_, err := New(strings.Repeat("a", MaxLength+1), nil)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestWithEmbedding(t *testing.T) {
	b, err := New("how do I rotate keys?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.HasEmbedding() {
		t.Fatal("new bundle must not carry an embedding")
	}
	e := b.WithEmbedding([]float32{0.1, 0.2})
	if !e.HasEmbedding() || len(e.Embedding()) != 2 {
		t.Errorf("embedding not attached: %v", e.Embedding())
	}
	if b.HasEmbedding() {
		t.Error("WithEmbedding must not mutate the receiver")
	}
	if e.Text() != "how do I rotate keys?" {
		t.Errorf("Text() = %q", e.Text())
	}
}
