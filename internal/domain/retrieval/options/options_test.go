package options

import (
	"errors"
	"reflect"
	"testing"

	"github.com/kailas-cloud/supportbot/internal/domain"
)

func TestResolve_Defaults(t *testing.T) {
	opts, err := Resolve(Request{}, Defaults{TopK: 7, Language: "EN"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.TopK() != 7 {
		t.Errorf("TopK() = %d, want 7", opts.TopK())
	}
	if opts.Language() != "en" {
		t.Errorf("Language() = %q, want en", opts.Language())
	}
	if !opts.IncludeTags().Empty() || !opts.ExcludeTags().Empty() {
		t.Error("tag sets must default to empty")
	}
	if opts.AvoidQuery() {
		t.Error("AvoidQuery must default to false")
	}
}

func TestResolve_ZeroDefaults(t *testing.T) {
	opts, err := Resolve(Request{}, Defaults{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.TopK() != domain.DefaultTopK || opts.Language() != domain.DefaultLanguage {
		t.Errorf("got topK=%d lang=%q", opts.TopK(), opts.Language())
	}
}

func TestResolve_Overrides(t *testing.T) {
	opts, err := Resolve(Request{
		TopK:        4,
		Language:    " Ja ",
		IncludeTags: []string{"api", " ", "api"},
		ExcludeTags: []string{"deprecated"},
		AvoidQuery:  true,
	}, Defaults{TopK: 10, Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.TopK() != 4 || opts.Language() != "ja" || !opts.AvoidQuery() {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !reflect.DeepEqual(opts.IncludeTags().Slice(), []string{"api"}) {
		t.Errorf("IncludeTags = %v", opts.IncludeTags().Slice())
	}
	if !opts.ExcludeTags().Contains("deprecated") {
		t.Error("ExcludeTags must contain deprecated")
	}
}

func TestResolve_NegativeTopK(t *testing.T) {
	_, err := Resolve(Request{TopK: -1}, Defaults{TopK: 10})
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestResolve_ClampTopK(t *testing.T) {
	opts, err := Resolve(Request{TopK: MaxTopK + 50}, Defaults{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.TopK() != MaxTopK {
		t.Errorf("TopK() = %d, want %d", opts.TopK(), MaxTopK)
	}
}

func TestTagSet_Intersects(t *testing.T) {
	s := NewTagSet("api", "faq")
	if !s.Intersects([]string{"guide", "faq"}) {
		t.Error("expected intersection")
	}
	if s.Intersects([]string{"guide"}) {
		t.Error("unexpected intersection")
	}
	if NewTagSet().Intersects([]string{"api"}) {
		t.Error("empty set intersects nothing")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d", s.Len())
	}
}
