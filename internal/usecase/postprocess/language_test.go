package postprocess

import (
	"context"
	"reflect"
	"testing"
)

func TestLanguageFilter_FallbackLanguagePasses(t *testing.T) {
	in := candidates(
		doc{id: "ja", lang: "ja"},
		doc{id: "py", lang: "python"},
		doc{id: "en", lang: "en"},
	)
	out := NewLanguageFilter("").Apply(context.Background(), in, stageCtx(2, "JA", nil, nil))
	if !reflect.DeepEqual(ids(out), []string{"ja", "py"}) {
		t.Errorf("ids = %v, want [ja py]", ids(out))
	}
}

func TestLanguageFilter_CaseInsensitive(t *testing.T) {
	in := candidates(doc{id: "a", lang: "EN"}, doc{id: "b", lang: "fr"})
	out := NewLanguageFilter("python").Apply(context.Background(), in, stageCtx(1, "en", nil, nil))
	if !reflect.DeepEqual(ids(out), []string{"a"}) {
		t.Errorf("ids = %v", ids(out))
	}
}

func TestLanguageFilter_MissingLanguageFailsStrict(t *testing.T) {
	in := candidates(doc{id: "none"}, doc{id: "en", lang: "en"})
	out := NewLanguageFilter("").Apply(context.Background(), in, stageCtx(1, "en", nil, nil))
	if !reflect.DeepEqual(ids(out), []string{"en"}) {
		t.Errorf("ids = %v", ids(out))
	}
}

func TestLanguageFilter_Backfill(t *testing.T) {
	in := candidates(
		doc{id: "fr1", lang: "fr"},
		doc{id: "en1", lang: "en"},
		doc{id: "de1", lang: "de"},
		doc{id: "fr2", lang: "fr"},
	)
	out := NewLanguageFilter("").Apply(context.Background(), in, stageCtx(3, "en", nil, nil))
	if !reflect.DeepEqual(ids(out), []string{"fr1", "en1", "de1"}) {
		t.Errorf("ids = %v", ids(out))
	}
}

func TestLanguageFilter_Idempotent(t *testing.T) {
	in := candidates(
		doc{id: "fr1", lang: "fr"},
		doc{id: "en1", lang: "en"},
		doc{id: "py1", lang: "python"},
	)
	f := NewLanguageFilter("")
	pc := stageCtx(3, "ja", nil, nil)
	once := f.Apply(context.Background(), in, pc)
	twice := f.Apply(context.Background(), once, pc)
	if !reflect.DeepEqual(ids(once), ids(twice)) {
		t.Errorf("once=%v twice=%v", ids(once), ids(twice))
	}
}
