// Package pipeline wires classification, the audit log and the per-format
// extractors into a single ingest call.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/classify"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/extract"
	"github.com/hurttlocker/mira/internal/logging"
	"github.com/hurttlocker/mira/internal/metrics"
)

// DefaultSource is recorded for requests that do not name their origin.
const DefaultSource = "api"

var (
	// ErrUnsupportedFormat is matched by *UnsupportedFormatError.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrNoInput is returned for a request with an empty payload.
	ErrNoInput = errors.New("no input provided")
)

// UnsupportedFormatError reports a payload that was classified and logged
// but has no extractor.
type UnsupportedFormatError struct {
	InputID int64
	Format  document.Format
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format: %s", e.Format)
}

func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// Log is what the pipeline needs from the audit store.
type Log interface {
	extract.Journal
	LogInput(ctx context.Context, source, inputType, format, intent string) (int64, error)
}

// Config configures a Pipeline. Classifier and Registry are built from
// Advisor and Log when nil.
type Config struct {
	Log        Log
	Advisor    advisor.Advisor
	Classifier *classify.Classifier
	Registry   *extract.Registry
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Pipeline routes payloads to extractors.
type Pipeline struct {
	log        Log
	classifier *classify.Classifier
	registry   *extract.Registry
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Log == nil {
		return nil, errors.New("pipeline: audit log is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(classify.Config{Advisor: cfg.Advisor, Logger: cfg.Logger})
	}
	if cfg.Registry == nil {
		r, err := extract.NewDefaultRegistry(extract.Config{
			Journal: cfg.Log,
			Advisor: cfg.Advisor,
			Logger:  cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		cfg.Registry = r
	}
	cfg.Logger.Debug("pipeline ready", "formats", cfg.Registry.Formats())
	return &Pipeline{
		log:        cfg.Log,
		classifier: cfg.Classifier,
		registry:   cfg.Registry,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}, nil
}

// Request is one item to ingest.
type Request struct {
	Source  string
	Type    document.InputType
	Payload document.Payload
}

// InputMetadata summarizes the logged InputEvent.
type InputMetadata struct {
	ID        int64           `json:"id"`
	Format    document.Format `json:"format"`
	Intent    document.Intent `json:"intent"`
	Timestamp *time.Time      `json:"timestamp"`
}

// Result is an extracted record plus the metadata of its input.
type Result struct {
	Record extract.Record
	Input  InputMetadata
}

// MarshalJSON emits the record's fields followed by an input_metadata key.
func (r *Result) MarshalJSON() ([]byte, error) {
	rec, err := json.Marshal(r.Record)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(r.Input)
	if err != nil {
		return nil, err
	}
	rec = bytes.TrimSpace(rec)
	if len(rec) < 2 || rec[0] != '{' {
		return nil, fmt.Errorf("record %T is not a JSON object", r.Record)
	}

	var buf bytes.Buffer
	buf.Write(rec[:len(rec)-1])
	if len(rec) > 2 {
		buf.WriteByte(',')
	}
	buf.WriteString(`"input_metadata":`)
	buf.Write(meta)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Ingest classifies the payload, logs the input and runs the extractor for
// its format. A request cancelled during classification is not logged.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if req.Payload.Kind() == document.KindEmpty {
		return nil, ErrNoInput
	}
	if req.Source == "" {
		req.Source = DefaultSource
	}

	format, intent := p.classifier.Classify(ctx, req.Payload, req.Type)
	if err := ctx.Err(); err != nil {
		p.metrics.ObserveIngest(string(format), metrics.StatusCancelled)
		return nil, err
	}

	id, err := p.log.LogInput(ctx, req.Source, string(req.Type), string(format), string(intent))
	if err != nil {
		p.metrics.ObserveIngest(string(format), metrics.StatusError)
		return nil, fmt.Errorf("logging input: %w", err)
	}
	logger := p.logger.With(logging.FieldInputID, id, "format", format, "intent", intent)
	logger.Info("input classified", "type", req.Type, "size", req.Payload.Len())

	x, ok := p.registry.Find(format)
	if !ok {
		p.metrics.ObserveIngest(string(format), metrics.StatusUnsupported)
		logger.Warn("unsupported format")
		return nil, &UnsupportedFormatError{InputID: id, Format: format}
	}

	start := time.Now()
	rec, err := x.Extract(ctx, req.Payload, id)
	p.metrics.ObserveExtraction(string(format), time.Since(start))
	if err != nil {
		status := metrics.StatusError
		if ctx.Err() != nil {
			status = metrics.StatusCancelled
		}
		p.metrics.ObserveIngest(string(format), status)
		return nil, fmt.Errorf("extracting %s input %d: %w", format, id, err)
	}

	res := &Result{
		Record: rec,
		Input:  InputMetadata{ID: id, Format: format, Intent: intent},
	}
	ts, err := p.log.InputTimestamp(ctx, id)
	if err == nil {
		res.Input.Timestamp = &ts
	} else {
		logger.Warn("reading input timestamp", logging.FieldError, err)
	}

	p.metrics.ObserveIngest(string(format), metrics.StatusOK)
	logger.Info("input processed", "elapsed", time.Since(start))
	return res, nil
}
