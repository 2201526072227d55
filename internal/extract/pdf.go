package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/logging"
)

const pdfAgent = "pdf_agent"

const (
	maxPDFPages        = 5
	minPDFTextRunes    = 50
	maxPDFTextRunes    = 5000
	minAnalysisRunes   = 100
	maxAnalysisRunes   = 4000
	pdfVersionScanSize = 1000
	pdfTitleScanSize   = 2000
)

const (
	imageOnlyMarker    = "The PDF appears to contain mainly images or non-extractable content."
	truncationMarker   = "... (content truncated)"
	extractFailureText = "Failed to extract text content from this PDF file."
)

var (
	defaultTopics   = []string{"Unknown"}
	defaultNextStep = []string{"Review document contents"}

	pdfVersionRe = regexp.MustCompile(`%PDF-(\d+\.\d+)`)
	pdfTitleRe   = regexp.MustCompile(`/Title\s*\(([^)]+)\)`)

	disableConfigDir sync.Once
)

// PDFExtractor pulls metadata and leading page text out of PDF files.
type PDFExtractor struct {
	base
}

// NewPDF creates a PDFExtractor.
func NewPDF(cfg Config) (*PDFExtractor, error) {
	b, err := newBase(cfg, pdfAgent)
	if err != nil {
		return nil, err
	}
	// pdfcpu would otherwise create a config directory under $HOME.
	disableConfigDir.Do(api.DisableConfigDir)
	return &PDFExtractor{base: b}, nil
}

func (e *PDFExtractor) Format() document.Format { return document.FormatPDF }

func (e *PDFExtractor) Extract(ctx context.Context, payload document.Payload, inputID int64) (Record, error) {
	return e.Process(ctx, payload, inputID)
}

// Process parses the PDF, optionally asks the advisor to describe it, and
// journals the record under pdf_<inputID>. Malformed input never fails.
func (e *PDFExtractor) Process(ctx context.Context, payload document.Payload, inputID int64) (*PDFRecord, error) {
	data := payload.Bytes()
	if data == nil {
		data = []byte(payload.Text())
	}

	rec, perr := baselinePDF(data)
	if perr != nil {
		e.logger.Warn("pdf parse failed, using header scan", logging.FieldInputID, inputID, logging.FieldError, perr.Error())
	}

	analysisText := rec.ContentPreview
	if utf8.RuneCountInString(rec.ExtractedText) > minAnalysisRunes {
		analysisText = document.TruncateRunes(rec.ExtractedText, maxAnalysisRunes)
	}
	adv, err := e.advisor.AnalyzePDF(ctx, analysisText, len(data))
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		e.adviceFailed(inputID, err)
	} else {
		applyPDFAdvice(rec, adv)
	}

	if rec.ProcessedAt, err = e.processedAt(ctx, inputID); err != nil {
		return nil, err
	}
	if err := e.journalRecord(ctx, inputID, rec, fmt.Sprintf("pdf_%d", inputID)); err != nil {
		return nil, err
	}
	return rec, nil
}

// baselinePDF builds the deterministic part of the record. The returned
// error is the parse failure, if any; the record is usable either way.
func baselinePDF(data []byte) (*PDFRecord, error) {
	rec := &PDFRecord{
		DocumentType: "pdf",
		SizeBytes:    len(data),
		Version:      headerVersion(data),
	}

	parsed, err := parsePDF(data)
	if err != nil {
		rec.Title = headerTitle(data)
		rec.ContentPreview = fmt.Sprintf("Unable to extract PDF content: %v", err)
		rec.ExtractedText = extractFailureText
		return rec, err
	}

	rec.PageCount = parsed.pageCount
	rec.Title = parsed.title
	if rec.Title == "" {
		rec.Title = "Untitled"
	}

	var sb strings.Builder
	for i, text := range parsed.pages {
		if text == "" {
			continue
		}
		fmt.Fprintf(&sb, "--- Page %d ---\n%s\n\n", i+1, text)
	}
	extracted := sb.String()
	if utf8.RuneCountInString(strings.TrimSpace(extracted)) < minPDFTextRunes {
		extracted = imageOnlyMarker
	}
	if utf8.RuneCountInString(extracted) > maxPDFTextRunes {
		extracted = document.TruncateRunes(extracted, maxPDFTextRunes) + truncationMarker
	}
	rec.ExtractedText = extracted

	rec.ContentPreview = fmt.Sprintf("PDF document (version %s), %d pages, size: %s KB",
		rec.Version, rec.PageCount, strconv.FormatFloat(float64(len(data))/1024, 'f', 1, 64))
	return rec, nil
}

func applyPDFAdvice(rec *PDFRecord, adv advisor.PDFAnalysis) {
	analysis := &PDFAnalysis{
		EstimatedPageCount:   adv.EstimatedPageCount.String(),
		Topics:               orList([]string(adv.Topics), defaultTopics),
		RecommendedNextSteps: orList([]string(adv.RecommendedNextSteps), defaultNextStep),
	}
	if docType := adv.LikelyDocumentType.String(); docType != "" {
		analysis.LikelyDocumentType = docType
		if docType != "unknown" {
			rec.DocumentType = docType
		}
	}
	if analysis.EstimatedPageCount == "" {
		analysis.EstimatedPageCount = strconv.Itoa(rec.PageCount)
	}
	if summary := adv.ContentSummary.String(); summary != "" {
		analysis.ContentSummary = summary
		rec.ContentSummary = summary
	}

	rec.AIAnalysis = analysis
	rec.AIEnhanced = true
	rec.Topics = analysis.Topics
	rec.Recommendations = analysis.RecommendedNextSteps
}

type parsedPDF struct {
	pageCount int
	title     string
	pages     []string
}

// parsePDF reads the document with pdfcpu. Parser panics on hostile input
// are reported as errors.
func parsePDF(data []byte) (out parsedPDF, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = parsedPDF{}, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return parsedPDF{}, err
	}

	out.pageCount = ctx.PageCount
	out.title = strings.TrimSpace(ctx.Title)
	for pageNr := 1; pageNr <= min(maxPDFPages, ctx.PageCount); pageNr++ {
		out.pages = append(out.pages, pageText(ctx, pageNr))
	}
	return out, nil
}

func pageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return textFromContentStream(data)
}

func headerVersion(data []byte) string {
	if m := pdfVersionRe.FindSubmatch(head(data, pdfVersionScanSize)); m != nil {
		return string(m[1])
	}
	return "Unknown"
}

func headerTitle(data []byte) string {
	if m := pdfTitleRe.FindSubmatch(head(data, pdfTitleScanSize)); m != nil {
		return string(m[1])
	}
	return "Untitled"
}

// head returns up to n leading bytes with invalid UTF-8 dropped.
func head(data []byte, n int) []byte {
	if len(data) > n {
		data = data[:n]
	}
	return bytes.ToValidUTF8(data, nil)
}
