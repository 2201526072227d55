// Package advisor defines the optional model capability that improves
// classification and extraction. Every call returns (value, error); callers
// treat any error as "no advice" and fall back to deterministic rules.
package advisor

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned by Disabled for every call.
	ErrUnavailable = errors.New("advisor: unavailable")

	// ErrMalformedResponse is returned when a model reply cannot be decoded.
	ErrMalformedResponse = errors.New("advisor: malformed response")
)

// Task names used for logging and metrics.
const (
	TaskClassify = "classify"
	TaskEmail    = "email"
	TaskJSON     = "json"
	TaskPDF      = "pdf"
)

// Advisor is the model capability injected into the classifier and extractors.
type Advisor interface {
	// ClassifyContent picks one of categories for text.
	ClassifyContent(ctx context.Context, text string, categories []string) (string, error)
	// ExtractEmailMetadata reads sender, subject, intent, urgency and a summary.
	ExtractEmailMetadata(ctx context.Context, text string) (EmailMetadata, error)
	// AnalyzeJSON describes a JSON object.
	AnalyzeJSON(ctx context.Context, data map[string]any) (JSONAnalysis, error)
	// AnalyzePDF describes extracted PDF text.
	AnalyzePDF(ctx context.Context, text string, sizeBytes int) (PDFAnalysis, error)
}

// EmailMetadata is the advisor's reading of an email. A decoded reply
// without a sender key reports UnknownSender; an empty sender stays empty.
type EmailMetadata struct {
	Sender  Text `json:"sender"`
	Subject Text `json:"subject"`
	Intent  Text `json:"intent"`
	Urgency Text `json:"urgency"`
	Summary Text `json:"summary"`
}

// JSONAnalysis is the advisor's description of a JSON document.
type JSONAnalysis struct {
	MainEntities         StringList `json:"main_entities"`
	StructureDescription Text       `json:"structure_description"`
	KeyDataPoints        StringList `json:"key_data_points"`
	MissingFields        StringList `json:"missing_fields"`
	DataQuality          Text       `json:"data_quality"`
	LikelyPurpose        Text       `json:"likely_purpose"`
	Insights             StringList `json:"insights"`
	Summary              Text       `json:"summary"`
}

// PDFAnalysis is the advisor's description of a PDF.
type PDFAnalysis struct {
	LikelyDocumentType   Text       `json:"likely_document_type"`
	EstimatedPageCount   Text       `json:"estimated_page_count"`
	ContentSummary       Text       `json:"content_summary"`
	Topics               StringList `json:"topics"`
	RecommendedNextSteps StringList `json:"recommended_next_steps"`
}

// Disabled is the Advisor used when no model is configured.
type Disabled struct{}

var _ Advisor = Disabled{}

func (Disabled) ClassifyContent(context.Context, string, []string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) ExtractEmailMetadata(context.Context, string) (EmailMetadata, error) {
	return EmailMetadata{}, ErrUnavailable
}

func (Disabled) AnalyzeJSON(context.Context, map[string]any) (JSONAnalysis, error) {
	return JSONAnalysis{}, ErrUnavailable
}

func (Disabled) AnalyzePDF(context.Context, string, int) (PDFAnalysis, error) {
	return PDFAnalysis{}, ErrUnavailable
}

// OrDisabled returns a, or Disabled when a is nil.
func OrDisabled(a Advisor) Advisor {
	if a == nil {
		return Disabled{}
	}
	return a
}
