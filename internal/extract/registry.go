package extract

import (
	"fmt"
	"sync"

	"github.com/hurttlocker/mira/internal/document"
)

// Registry maps formats to extractors.
type Registry struct {
	mu         sync.RWMutex
	extractors map[document.Format]Extractor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{extractors: make(map[document.Format]Extractor)}
}

// NewDefaultRegistry registers the JSON, email and PDF extractors.
func NewDefaultRegistry(cfg Config) (*Registry, error) {
	jsonX, err := NewJSON(cfg)
	if err != nil {
		return nil, err
	}
	emailX, err := NewEmail(cfg)
	if err != nil {
		return nil, err
	}
	pdfX, err := NewPDF(cfg)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	for _, x := range []Extractor{jsonX, emailX, pdfX} {
		if err := r.Register(x); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an extractor. A format may only be registered once.
func (r *Registry) Register(x Extractor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := x.Format()
	if _, exists := r.extractors[f]; exists {
		return fmt.Errorf("extractor for format %q already registered", f)
	}
	r.extractors[f] = x
	return nil
}

// Find returns the extractor for format, if any.
func (r *Registry) Find(format document.Format) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	x, ok := r.extractors[format]
	return x, ok
}

// Formats lists the registered formats.
func (r *Registry) Formats() []document.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]document.Format, 0, len(r.extractors))
	for f := range r.extractors {
		out = append(out, f)
	}
	return out
}
