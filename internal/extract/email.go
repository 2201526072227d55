package extract

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/keywords"
)

const emailAgent = "email_agent"

var (
	fromLineRe    = regexp.MustCompile(`From:\s*(.*?)(?:\n|$)`)
	subjectLineRe = regexp.MustCompile(`Subject:\s*(.*?)(?:\n|$)`)

	validEmailIntents = []string{"rfq", "invoice", "complaint", "regulation", "inquiry", "other"}
	validUrgencies    = []string{"high", "normal", "low"}

	// rfq is matched case-sensitively before these rules run.
	emailFallbackRules = []keywords.Rule{
		{Label: string(document.IntentInvoice), Terms: []string{"invoice", "payment"}},
		{Label: string(document.IntentComplaint), Terms: []string{"complaint", "issue"}},
		{Label: string(document.IntentRegulation), Terms: []string{"regulation", "compliance"}},
	}
)

// Urgency levels.
const (
	UrgencyHigh   = "high"
	UrgencyNormal = "normal"
	UrgencyLow    = "low"
)

// EmailExtractor normalizes free-text emails into CRM-style records.
type EmailExtractor struct {
	base
}

// NewEmail creates an EmailExtractor.
func NewEmail(cfg Config) (*EmailExtractor, error) {
	b, err := newBase(cfg, emailAgent)
	if err != nil {
		return nil, err
	}
	return &EmailExtractor{base: b}, nil
}

func (e *EmailExtractor) Format() document.Format { return document.FormatEmail }

func (e *EmailExtractor) Extract(ctx context.Context, payload document.Payload, inputID int64) (Record, error) {
	return e.Process(ctx, payload, inputID)
}

// Process reads sender, subject, intent and urgency from the email and
// journals the record under email_<inputID>.
func (e *EmailExtractor) Process(ctx context.Context, payload document.Payload, inputID int64) (*EmailRecord, error) {
	text := payload.Text()

	md, err := e.advisor.ExtractEmailMetadata(ctx, text)
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}

	var rec *EmailRecord
	if err == nil {
		rec = fromAdvice(md, text)
	} else {
		e.adviceFailed(inputID, err)
		rec = fromRules(text)
	}

	if rec.ProcessedAt, err = e.processedAt(ctx, inputID); err != nil {
		return nil, err
	}
	if err := e.journalRecord(ctx, inputID, rec, fmt.Sprintf("email_%d", inputID)); err != nil {
		return nil, err
	}
	return rec, nil
}

func fromAdvice(md advisor.EmailMetadata, body string) *EmailRecord {
	summary := strings.TrimSpace(md.Summary.String())
	return &EmailRecord{
		Sender:     strings.TrimSpace(md.Sender.String()),
		Subject:    strings.TrimSpace(md.Subject.String()),
		Intent:     oneOf(md.Intent.String(), validEmailIntents, string(document.IntentOther)),
		Urgency:    oneOf(md.Urgency.String(), validUrgencies, UrgencyNormal),
		Summary:    &summary,
		Body:       body,
		AIEnhanced: true,
	}
}

func fromRules(body string) *EmailRecord {
	sender := advisor.UnknownSender
	if m := fromLineRe.FindStringSubmatch(body); m != nil {
		sender = strings.TrimSpace(m[1])
	}
	subject := ""
	if m := subjectLineRe.FindStringSubmatch(body); m != nil {
		subject = strings.TrimSpace(m[1])
	}
	return &EmailRecord{
		Sender:  sender,
		Subject: subject,
		Intent:  string(ruleIntent(body)),
		Urgency: ruleUrgency(body),
		Body:    body,
	}
}

func ruleIntent(body string) document.Intent {
	if strings.Contains(body, "RFQ") || strings.Contains(body, "Request for Quote") {
		return document.IntentRFQ
	}
	if label, ok := keywords.Match(body, emailFallbackRules); ok {
		return document.Intent(label)
	}
	return document.IntentUnknown
}

func ruleUrgency(body string) string {
	switch {
	case keywords.ContainsAny(body, "urgent", "asap"):
		return UrgencyHigh
	case keywords.ContainsAny(body, "low priority", "when you have time"):
		return UrgencyLow
	default:
		return UrgencyNormal
	}
}

// oneOf lowercases and trims v, returning it if it is in allowed and
// fallback otherwise.
func oneOf(v string, allowed []string, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return fallback
}
