package extract

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/document"
)

func newEmailExtractor(t *testing.T, j *fakeJournal, a advisor.Advisor) *EmailExtractor {
	t.Helper()
	x, err := NewEmail(Config{Journal: j, Advisor: a})
	if err != nil {
		t.Fatalf("NewEmail: %v", err)
	}
	return x
}

func TestEmailRulesEndToEnd(t *testing.T) {
	j := newFakeJournal(1)
	x := newEmailExtractor(t, j, nil)
	body := "From: alice@x.com\nSubject: RFQ for 100 widgets\nURGENT: need by Friday"

	rec, err := x.Process(context.Background(), document.FromText(body), 1)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Sender != "alice@x.com" || rec.Subject != "RFQ for 100 widgets" {
		t.Errorf("sender/subject = %q / %q", rec.Sender, rec.Subject)
	}
	if rec.Intent != "rfq" || rec.Urgency != "high" {
		t.Errorf("intent/urgency = %q / %q", rec.Intent, rec.Urgency)
	}
	if rec.AIEnhanced || rec.Summary != nil {
		t.Errorf("rules path must not be ai_enhanced or carry a summary: %+v", rec)
	}
	if rec.Body != body {
		t.Error("body not preserved")
	}

	out, _ := json.Marshal(rec)
	var m map[string]any
	json.Unmarshal(out, &m)
	if _, ok := m["summary"]; ok {
		t.Error("summary key should be absent on the rules path")
	}

	e := j.only(t)
	if e.agent != "email_agent" || e.correlationID != "email_1" {
		t.Errorf("unexpected journal entry: %+v", e)
	}
}

func TestEmailRuleIntent(t *testing.T) {
	tests := []struct {
		body string
		want document.Intent
	}{
		{"Please send a Request for Quote", document.IntentRFQ},
		// rfq requires exact case on this path.
		{"please send an rfq", document.IntentUnknown},
		{"Payment overdue", document.IntentInvoice},
		{"There is an ISSUE with the order", document.IntentComplaint},
		{"New Compliance rules", document.IntentRegulation},
		{"Just saying hi", document.IntentUnknown},
	}
	for _, tt := range tests {
		if got := ruleIntent(tt.body); got != tt.want {
			t.Errorf("ruleIntent(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestEmailRuleUrgency(t *testing.T) {
	tests := map[string]string{
		"please reply asap":        "high",
		"Urgent matter":            "high",
		"This is Low Priority":     "low",
		"reply when you have time": "low",
		"regular message":          "normal",
	}
	for body, want := range tests {
		if got := ruleUrgency(body); got != want {
			t.Errorf("ruleUrgency(%q) = %q, want %q", body, got, want)
		}
	}
}

func TestEmailHeadersMissing(t *testing.T) {
	rec := fromRules("no headers here")
	if rec.Sender != "Unknown" || rec.Subject != "" {
		t.Errorf("sender/subject = %q / %q", rec.Sender, rec.Subject)
	}
}

func TestEmailFromLastLine(t *testing.T) {
	rec := fromRules("Subject: hi\nFrom:   bob@y.com  ")
	if rec.Sender != "bob@y.com" || rec.Subject != "hi" {
		t.Errorf("sender/subject = %q / %q", rec.Sender, rec.Subject)
	}
}

func TestEmailAdvisorPath(t *testing.T) {
	adv := &fakeAdvisor{email: &advisor.EmailMetadata{
		Sender:  "  alice@x.com ",
		Subject: " Quote ",
		Intent:  " RFQ ",
		Urgency: "critical",
		Summary: " Needs a quote. ",
	}}
	x := newEmailExtractor(t, newFakeJournal(2), adv)
	rec, err := x.Process(context.Background(), document.FromText("From: alice@x.com"), 2)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Sender != "alice@x.com" || rec.Subject != "Quote" || rec.Intent != "rfq" {
		t.Errorf("unexpected advisor record: %+v", rec)
	}
	if rec.Urgency != "normal" {
		t.Errorf("invalid urgency should map to normal, got %q", rec.Urgency)
	}
	if rec.Summary == nil || *rec.Summary != "Needs a quote." {
		t.Errorf("summary = %v", rec.Summary)
	}
	if !rec.AIEnhanced {
		t.Error("advisor path must be ai_enhanced")
	}
}

func TestEmailAdvisorInvalidIntent(t *testing.T) {
	adv := &fakeAdvisor{email: &advisor.EmailMetadata{Intent: "spam", Urgency: "LOW"}}
	x := newEmailExtractor(t, newFakeJournal(3), adv)
	rec, err := x.Process(context.Background(), document.FromText("body"), 3)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Intent != "other" || rec.Urgency != "low" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestEmailAdvisorEmptySenderKept(t *testing.T) {
	adv := &fakeAdvisor{email: &advisor.EmailMetadata{Sender: "  ", Intent: "inquiry"}}
	x := newEmailExtractor(t, newFakeJournal(6), adv)
	rec, err := x.Process(context.Background(), document.FromText("From: d@w.com"), 6)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Sender != "" {
		t.Errorf("sender = %q, want empty", rec.Sender)
	}
}

func TestEmailAdvisorFailureFallsBack(t *testing.T) {
	adv := &fakeAdvisor{err: errors.New("timeout")}
	x := newEmailExtractor(t, newFakeJournal(4), adv)
	rec, err := x.Process(context.Background(), document.FromBytes([]byte("From: c@z.com\ninvoice attached")), 4)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.AIEnhanced || rec.Intent != "invoice" || rec.Sender != "c@z.com" {
		t.Errorf("unexpected fallback record: %+v", rec)
	}
}

func TestEmailCancelledDuringAdvice(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := newFakeJournal(5)
	x := newEmailExtractor(t, j, &fakeAdvisor{onCall: cancel})
	if _, err := x.Process(ctx, document.FromText("x"), 5); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(j.entries) != 0 {
		t.Error("cancelled extraction must not be journaled")
	}
}
