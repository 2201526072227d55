package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/hurttlocker/mira/internal/document"
)

const jsonAgent = "json_agent"

// Fallback analysis values.
const (
	fallbackStructure = "This appears to be a structured JSON document."
	fallbackQuality   = "unknown"
	fallbackPurpose   = "Data storage or transfer"
	fallbackSummary   = "This is a JSON document containing structured data."
)

var (
	fallbackEntities   = []string{"Data Object"}
	fallbackDataPoints = []string{"Contains structured information"}
	fallbackInsights   = []string{"This JSON contains structured data"}
)

// requiredJSONFields are checked at the top level, in order.
var requiredJSONFields = []string{"id", "timestamp"}

// JSONExtractor normalizes JSON documents.
type JSONExtractor struct {
	base
}

// NewJSON creates a JSONExtractor.
func NewJSON(cfg Config) (*JSONExtractor, error) {
	b, err := newBase(cfg, jsonAgent)
	if err != nil {
		return nil, err
	}
	return &JSONExtractor{base: b}, nil
}

func (e *JSONExtractor) Format() document.Format { return document.FormatJSON }

func (e *JSONExtractor) Extract(ctx context.Context, payload document.Payload, inputID int64) (Record, error) {
	return e.Process(ctx, payload, inputID)
}

// Process parses payload into an object, describes it and journals the
// record under thread_<inputID>. Unparseable input is kept under "raw".
func (e *JSONExtractor) Process(ctx context.Context, payload document.Payload, inputID int64) (*JSONRecord, error) {
	data := toObject(payload)

	missing := make([]string, 0, len(requiredJSONFields))
	for _, f := range requiredJSONFields {
		if _, ok := data[f]; !ok {
			missing = append(missing, f)
		}
	}

	analysis, err := e.analyze(ctx, data, missing, inputID)
	if err != nil {
		return nil, err
	}

	ts, err := e.processedAt(ctx, inputID)
	if err != nil {
		return nil, err
	}

	rec := &JSONRecord{
		Data: data,
		Metadata: JSONMetadata{
			Source:        jsonAgent,
			ProcessedAt:   ts,
			MissingFields: missing,
			// Always true: the analysis section is present either way.
			AIEnhanced: true,
		},
		AIAnalysis: analysis,
		AIEnhanced: true,
	}

	if err := e.journalRecord(ctx, inputID, rec, fmt.Sprintf("thread_%d", inputID)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *JSONExtractor) analyze(ctx context.Context, data map[string]any, missing []string, inputID int64) (JSONAnalysis, error) {
	adv, err := e.advisor.AnalyzeJSON(ctx, data)
	if cerr := ctx.Err(); cerr != nil {
		return JSONAnalysis{}, cerr
	}
	if err != nil {
		e.adviceFailed(inputID, err)
		return fallbackAnalysis(missing), nil
	}

	out := JSONAnalysis{
		MainEntities:         orList([]string(adv.MainEntities), fallbackEntities),
		StructureDescription: orText(adv.StructureDescription.String(), fallbackStructure),
		KeyDataPoints:        orList([]string(adv.KeyDataPoints), fallbackDataPoints),
		MissingFields:        append([]string{}, adv.MissingFields...),
		DataQuality:          orText(adv.DataQuality.String(), fallbackQuality),
		LikelyPurpose:        orText(adv.LikelyPurpose.String(), fallbackPurpose),
		Insights:             orList([]string(adv.Insights), fallbackInsights),
		Summary:              orText(adv.Summary.String(), fallbackSummary),
	}
	for _, f := range missing {
		if !slices.Contains(out.MissingFields, f) {
			out.MissingFields = append(out.MissingFields, f)
		}
	}
	return out, nil
}

func fallbackAnalysis(missing []string) JSONAnalysis {
	return JSONAnalysis{
		MainEntities:         slices.Clone(fallbackEntities),
		StructureDescription: fallbackStructure,
		KeyDataPoints:        slices.Clone(fallbackDataPoints),
		MissingFields:        append([]string{}, missing...),
		DataQuality:          fallbackQuality,
		LikelyPurpose:        fallbackPurpose,
		Insights:             slices.Clone(fallbackInsights),
		Summary:              fallbackSummary,
	}
}

// toObject coerces any payload into a JSON object.
func toObject(p document.Payload) map[string]any {
	switch p.Kind() {
	case document.KindValue:
		v, _ := p.Value()
		return objectOrRaw(v)
	case document.KindBytes:
		raw := p.Bytes()
		if !utf8.Valid(raw) {
			return map[string]any{"raw": p.ReplacedText()}
		}
		v, err := decodeJSON(string(raw))
		if err != nil {
			return map[string]any{"raw": string(raw)}
		}
		return objectOrRaw(v)
	default:
		text := p.Text()
		v, err := decodeJSON(text)
		if err != nil {
			return map[string]any{"raw": text}
		}
		return objectOrRaw(v)
	}
}

func objectOrRaw(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"raw": document.MarshalText(v)}
}

// decodeJSON parses exactly one JSON value, keeping numbers verbatim.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// ParseJSONText parses exactly one JSON value from s. Unlike the
// extractor it reports invalid input instead of wrapping it.
func ParseJSONText(s string) (any, error) {
	return decodeJSON(s)
}

func orList(v, fallback []string) []string {
	if len(v) > 0 {
		return v
	}
	return slices.Clone(fallback)
}

func orText(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
