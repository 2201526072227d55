package extract

import (
	"testing"

	"github.com/hurttlocker/mira/internal/document"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry(Config{Journal: newFakeJournal()})
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	if got := len(r.Formats()); got != 3 {
		t.Errorf("registered %d formats, want 3", got)
	}
	for _, f := range []document.Format{document.FormatJSON, document.FormatEmail, document.FormatPDF} {
		x, ok := r.Find(f)
		if !ok {
			t.Errorf("no extractor for %s", f)
			continue
		}
		if x.Format() != f {
			t.Errorf("extractor for %s reports %s", f, x.Format())
		}
	}
	if _, ok := r.Find(document.FormatUnknown); ok {
		t.Error("unknown format must not have an extractor")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := NewRegistry()
	x, err := NewJSON(Config{Journal: newFakeJournal()})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Register(x); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(x); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestDefaultRegistryNeedsJournal(t *testing.T) {
	if _, err := NewDefaultRegistry(Config{}); err == nil {
		t.Error("expected error without journal")
	}
}
