// Package classify detects the format and business intent of an
// ingested item. Format detection is deterministic; intent detection asks
// the advisor when one is configured and falls back to keyword rules.
package classify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/keywords"
	"github.com/hurttlocker/mira/internal/logging"
)

// sniffBytes is how much of a file payload is inspected for JSON or email markers.
const sniffBytes = 1000

// Categories is the fixed set offered to the advisor for intent.
var Categories = []string{"rfq", "invoice", "complaint", "regulation", "inquiry", "unknown"}

var (
	ruleInvoice    = keywords.Rule{Label: string(document.IntentInvoice), Terms: []string{"invoice", "payment", "bill"}}
	ruleComplaint  = keywords.Rule{Label: string(document.IntentComplaint), Terms: []string{"complaint", "issue", "problem"}}
	ruleRegulation = keywords.Rule{Label: string(document.IntentRegulation), Terms: []string{"regulation", "compliance", "legal"}}
	ruleInquiry    = keywords.Rule{Label: string(document.IntentInquiry), Terms: []string{"inquiry", "question", "information"}}

	jsonRules = []keywords.Rule{
		ruleInvoice,
		{Label: string(document.IntentRFQ), Terms: []string{"quote", "rfq", "request for quote"}},
		ruleComplaint,
		ruleRegulation,
		ruleInquiry,
	}

	emailRules = []keywords.Rule{
		{Label: string(document.IntentRFQ), Terms: []string{"rfq", "request for quote", "quotation"}},
		ruleInvoice,
		ruleComplaint,
		ruleRegulation,
		ruleInquiry,
	}
)

// Config configures a Classifier.
type Config struct {
	Advisor advisor.Advisor
	Logger  *slog.Logger
}

// Classifier assigns a format and an intent to each payload.
type Classifier struct {
	advisor advisor.Advisor
	logger  *slog.Logger
}

// New creates a Classifier. A nil advisor means rules only.
func New(cfg Config) *Classifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Classifier{advisor: advisor.OrDisabled(cfg.Advisor), logger: cfg.Logger}
}

// Classify returns the format and intent of payload.
func (c *Classifier) Classify(ctx context.Context, payload document.Payload, inputType document.InputType) (document.Format, document.Intent) {
	format := DetectFormat(payload, inputType)
	return format, c.DetectIntent(ctx, payload, format)
}

// DetectFormat determines the content format without external calls.
func DetectFormat(payload document.Payload, inputType document.InputType) document.Format {
	switch inputType {
	case document.InputJSON:
		return document.FormatJSON
	case document.InputEmail:
		return document.FormatEmail
	case document.InputFile:
		return sniffFile(payload.Bytes())
	default:
		return document.FormatUnknown
	}
}

func sniffFile(raw []byte) document.Format {
	if raw == nil {
		return document.FormatUnknown
	}
	if bytes.HasPrefix(raw, []byte("%PDF")) {
		return document.FormatPDF
	}

	head := raw
	if len(head) > sniffBytes {
		head = head[:sniffBytes]
	}
	sample := strings.ToValidUTF8(string(head), "")
	trimmed := strings.TrimSpace(sample)
	switch {
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		return document.FormatJSON
	case strings.Contains(sample, "From:") || strings.Contains(sample, "Subject:"):
		return document.FormatEmail
	default:
		return document.FormatUnknown
	}
}

// DetectIntent determines the business intent for a payload of the given
// format. PDF and unknown formats always yield IntentUnknown.
func (c *Classifier) DetectIntent(ctx context.Context, payload document.Payload, format document.Format) document.Intent {
	if format != document.FormatJSON && format != document.FormatEmail {
		return document.IntentUnknown
	}

	text := payload.Text()

	answer, err := c.advisor.ClassifyContent(ctx, text, Categories)
	if err == nil {
		for _, cat := range Categories {
			if strings.EqualFold(cat, answer) {
				return document.Intent(cat)
			}
		}
		return document.Intent(Categories[0])
	}
	if errors.Is(err, advisor.ErrUnavailable) {
		c.logger.Debug("advisor disabled, classifying intent by keywords", "format", format)
	} else {
		c.logger.Warn("advisor classification failed, using keywords", "format", format, logging.FieldError, err)
	}

	return MatchIntent(text, format)
}

// MatchIntent applies the keyword rules for format to text.
func MatchIntent(text string, format document.Format) document.Intent {
	var rules []keywords.Rule
	switch format {
	case document.FormatJSON:
		rules = jsonRules
	case document.FormatEmail:
		rules = emailRules
	default:
		return document.IntentUnknown
	}
	if label, ok := keywords.Match(text, rules); ok {
		return document.Intent(label)
	}
	return document.IntentUnknown
}
