package classify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/document"
)

// stubAdvisor answers ClassifyContent with a fixed reply.
type stubAdvisor struct {
	advisor.Disabled
	answer string
	err    error
	calls  int
}

func (s *stubAdvisor) ClassifyContent(_ context.Context, _ string, _ []string) (string, error) {
	s.calls++
	return s.answer, s.err
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name      string
		payload   document.Payload
		inputType document.InputType
		want      document.Format
	}{
		{"json type", document.FromValue(map[string]any{}), document.InputJSON, document.FormatJSON},
		{"email type", document.FromText("hi"), document.InputEmail, document.FormatEmail},
		{"pdf signature", document.FromBytes([]byte("%PDF-1.7 garbage")), document.InputFile, document.FormatPDF},
		{"pdf signature with binary tail", document.FromBytes([]byte("%PDF\x00\xff\xfe{")), document.InputFile, document.FormatPDF},
		{"json file", document.FromBytes([]byte("  {\"a\": 1}\n")), document.InputFile, document.FormatJSON},
		{"email file", document.FromBytes([]byte("From: a@b.c\nhello")), document.InputFile, document.FormatEmail},
		{"subject marker", document.FromBytes([]byte("Subject: hi")), document.InputFile, document.FormatEmail},
		{"plain text file", document.FromBytes([]byte("just words")), document.InputFile, document.FormatUnknown},
		{"file without bytes", document.FromText("{}"), document.InputFile, document.FormatUnknown},
		{"unknown type", document.FromText("{}"), document.InputType("fax"), document.FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.payload, tt.inputType); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectFormatOnlySniffsHead(t *testing.T) {
	// The closing brace sits beyond the sniffed window.
	body := "{" + strings.Repeat(" ", sniffBytes) + "}"
	if got := DetectFormat(document.FromBytes([]byte(body)), document.InputFile); got != document.FormatUnknown {
		t.Errorf("DetectFormat() = %q, want unknown", got)
	}
}

func TestMatchIntentJSONOrder(t *testing.T) {
	tests := []struct {
		text string
		want document.Intent
	}{
		{`{"type":"invoice","note":"quote attached"}`, document.IntentInvoice},
		{`{"request":"Quote for 50 units"}`, document.IntentRFQ},
		{`{"problem":"late"}`, document.IntentComplaint},
		{`{"topic":"LEGAL review"}`, document.IntentRegulation},
		{`{"q":"a question"}`, document.IntentInquiry},
		{`{"x":1}`, document.IntentUnknown},
	}
	for _, tt := range tests {
		if got := MatchIntent(tt.text, document.FormatJSON); got != tt.want {
			t.Errorf("MatchIntent(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestMatchIntentEmailOrder(t *testing.T) {
	tests := []struct {
		text string
		want document.Intent
	}{
		// rfq outranks invoice on the email path.
		{"RFQ: please include payment terms", document.IntentRFQ},
		{"Your quotation is attached", document.IntentRFQ},
		{"Invoice #42 overdue", document.IntentInvoice},
		{"I have an issue", document.IntentComplaint},
		{"compliance update", document.IntentRegulation},
		{"more information please", document.IntentInquiry},
		{"hello", document.IntentUnknown},
	}
	for _, tt := range tests {
		if got := MatchIntent(tt.text, document.FormatEmail); got != tt.want {
			t.Errorf("MatchIntent(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestClassifyWithoutAdvisor(t *testing.T) {
	c := New(Config{})
	ctx := context.Background()
	p := document.FromText("From: alice@x.com\nSubject: RFQ for 100 widgets")

	format, intent := c.Classify(ctx, p, document.InputEmail)
	if format != document.FormatEmail || intent != document.IntentRFQ {
		t.Fatalf("Classify() = (%q, %q), want (email, rfq)", format, intent)
	}
	// Without an advisor the classifier is deterministic.
	for i := 0; i < 3; i++ {
		f, in := c.Classify(ctx, p, document.InputEmail)
		if f != format || in != intent {
			t.Fatalf("run %d: got (%q, %q)", i, f, in)
		}
	}
}

func TestClassifyPDFIntentAlwaysUnknown(t *testing.T) {
	adv := &stubAdvisor{answer: "invoice"}
	c := New(Config{Advisor: adv})
	format, intent := c.Classify(context.Background(), document.FromBytes([]byte("%PDF-1.4 invoice")), document.InputFile)
	if format != document.FormatPDF || intent != document.IntentUnknown {
		t.Fatalf("Classify() = (%q, %q), want (pdf, unknown)", format, intent)
	}
	if adv.calls != 0 {
		t.Errorf("advisor should not be consulted for pdf, calls = %d", adv.calls)
	}
}

func TestClassifyAdvisorOverridesRules(t *testing.T) {
	adv := &stubAdvisor{answer: "Complaint"}
	c := New(Config{Advisor: adv})
	_, intent := c.Classify(context.Background(), document.FromValue(map[string]any{"invoice": 1}), document.InputJSON)
	if intent != document.IntentComplaint {
		t.Errorf("intent = %q, want complaint", intent)
	}
}

func TestClassifyAdvisorAnswerOutsideSet(t *testing.T) {
	c := New(Config{Advisor: &stubAdvisor{answer: "spam"}})
	_, intent := c.Classify(context.Background(), document.FromText("hi"), document.InputEmail)
	if intent != document.IntentRFQ {
		t.Errorf("intent = %q, want first category rfq", intent)
	}
}

func TestClassifyAdvisorFailureFallsBack(t *testing.T) {
	c := New(Config{Advisor: &stubAdvisor{err: errors.New("timeout")}})
	_, intent := c.Classify(context.Background(), document.FromValue(map[string]any{"payment_due": "2024-01-01"}), document.InputJSON)
	if intent != document.IntentInvoice {
		t.Errorf("intent = %q, want invoice from keywords", intent)
	}
}
