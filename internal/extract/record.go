package extract

import (
	"time"

	"github.com/hurttlocker/mira/internal/document"
)

// Record is a normalized extraction result. Field names are part of the
// wire contract.
type Record interface {
	Format() document.Format
}

// JSONMetadata describes how a JSON record was produced.
type JSONMetadata struct {
	Source        string     `json:"source"`
	ProcessedAt   *time.Time `json:"processed_at"`
	MissingFields []string   `json:"missing_fields"`
	AIEnhanced    bool       `json:"ai_enhanced"`
}

// JSONAnalysis is the eight-field description attached to every JSON record.
type JSONAnalysis struct {
	MainEntities         []string `json:"main_entities"`
	StructureDescription string   `json:"structure_description"`
	KeyDataPoints        []string `json:"key_data_points"`
	MissingFields        []string `json:"missing_fields"`
	DataQuality          string   `json:"data_quality"`
	LikelyPurpose        string   `json:"likely_purpose"`
	Insights             []string `json:"insights"`
	Summary              string   `json:"summary"`
}

// JSONRecord is the output of the JSON extractor.
type JSONRecord struct {
	Data       map[string]any `json:"data"`
	Metadata   JSONMetadata   `json:"metadata"`
	AIAnalysis JSONAnalysis   `json:"ai_analysis"`
	AIEnhanced bool           `json:"ai_enhanced"`
}

func (*JSONRecord) Format() document.Format { return document.FormatJSON }

// EmailRecord is the output of the email extractor. Summary is only set
// when the advisor produced the record.
type EmailRecord struct {
	Sender      string     `json:"sender"`
	Subject     string     `json:"subject"`
	Intent      string     `json:"intent"`
	Urgency     string     `json:"urgency"`
	Summary     *string    `json:"summary,omitempty"`
	Body        string     `json:"body"`
	ProcessedAt *time.Time `json:"processed_at"`
	AIEnhanced  bool       `json:"ai_enhanced"`
}

func (*EmailRecord) Format() document.Format { return document.FormatEmail }

// PDFAnalysis is the advisor section of a PDF record.
type PDFAnalysis struct {
	LikelyDocumentType   string   `json:"likely_document_type,omitempty"`
	EstimatedPageCount   string   `json:"estimated_page_count"`
	ContentSummary       string   `json:"content_summary,omitempty"`
	Topics               []string `json:"topics"`
	RecommendedNextSteps []string `json:"recommended_next_steps"`
}

// PDFRecord is the output of the PDF extractor. The trailing optional
// fields are only set when the advisor succeeded.
type PDFRecord struct {
	DocumentType   string     `json:"document_type"`
	SizeBytes      int        `json:"size_bytes"`
	Version        string     `json:"version"`
	Title          string     `json:"title"`
	PageCount      int        `json:"page_count"`
	ContentPreview string     `json:"content_preview"`
	ExtractedText  string     `json:"extracted_text"`
	ProcessedAt    *time.Time `json:"processed_at"`
	AIEnhanced     bool       `json:"ai_enhanced"`

	ContentSummary  string       `json:"content_summary,omitempty"`
	AIAnalysis      *PDFAnalysis `json:"ai_analysis,omitempty"`
	Topics          []string     `json:"topics,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`
}

func (*PDFRecord) Format() document.Format { return document.FormatPDF }
