package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/audit"
)

// fakeJournal records LogExtractedFields calls in memory.
type fakeJournal struct {
	mu      sync.Mutex
	known   map[int64]time.Time
	entries []journalEntry
	failLog error
}

type journalEntry struct {
	inputID       int64
	agent         string
	payload       any
	correlationID string
}

func newFakeJournal(ids ...int64) *fakeJournal {
	j := &fakeJournal{known: map[int64]time.Time{}}
	for _, id := range ids {
		j.known[id] = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	}
	return j
}

func (j *fakeJournal) InputTimestamp(_ context.Context, id int64) (time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ts, ok := j.known[id]
	if !ok {
		return time.Time{}, audit.ErrNotFound
	}
	return ts, nil
}

func (j *fakeJournal) LogExtractedFields(_ context.Context, id int64, agent string, payload any, cid string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failLog != nil {
		return j.failLog
	}
	j.entries = append(j.entries, journalEntry{id, agent, payload, cid})
	return nil
}

func (j *fakeJournal) only(t *testing.T) journalEntry {
	t.Helper()
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(j.entries))
	}
	return j.entries[0]
}

// fakeAdvisor returns canned answers; unset answers report ErrUnavailable.
type fakeAdvisor struct {
	email *advisor.EmailMetadata
	json  *advisor.JSONAnalysis
	pdf   *advisor.PDFAnalysis
	err   error
	// onCall runs before the answer is returned.
	onCall func()

	pdfText string
	pdfSize int
}

func (f *fakeAdvisor) ClassifyContent(context.Context, string, []string) (string, error) {
	return "", advisor.ErrUnavailable
}

func (f *fakeAdvisor) ExtractEmailMetadata(context.Context, string) (advisor.EmailMetadata, error) {
	f.hook()
	if f.err != nil {
		return advisor.EmailMetadata{}, f.err
	}
	if f.email == nil {
		return advisor.EmailMetadata{}, advisor.ErrUnavailable
	}
	return *f.email, nil
}

func (f *fakeAdvisor) AnalyzeJSON(context.Context, map[string]any) (advisor.JSONAnalysis, error) {
	f.hook()
	if f.err != nil {
		return advisor.JSONAnalysis{}, f.err
	}
	if f.json == nil {
		return advisor.JSONAnalysis{}, advisor.ErrUnavailable
	}
	return *f.json, nil
}

func (f *fakeAdvisor) AnalyzePDF(_ context.Context, text string, size int) (advisor.PDFAnalysis, error) {
	f.hook()
	f.pdfText, f.pdfSize = text, size
	if f.err != nil {
		return advisor.PDFAnalysis{}, f.err
	}
	if f.pdf == nil {
		return advisor.PDFAnalysis{}, advisor.ErrUnavailable
	}
	return *f.pdf, nil
}

func (f *fakeAdvisor) hook() {
	if f.onCall != nil {
		f.onCall()
	}
}

// buildTextPDF creates a valid PDF with one page per entry in pages and
// proper xref offsets. An empty title omits the info dictionary.
func buildTextPDF(title string, pages ...string) []byte {
	streams := make([]string, len(pages))
	for i, text := range pages {
		escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
		streams[i] = "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"
	}
	return buildStreamPDF(title, streams...)
}

// buildStreamPDF is buildTextPDF with raw page content streams.
func buildStreamPDF(title string, pages ...string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	// 1 catalog, 2 pages, 3 font, then page/content pairs, then info.
	nObjs := 3 + 2*len(pages)
	if title != "" {
		nObjs++
	}
	offsets := make([]int, nObjs+1)

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), len(pages))

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, stream := range pages {
		pageObj, contentObj := 4+2*i, 5+2*i

		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", pageObj, contentObj)

		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	infoRef := ""
	if title != "" {
		offsets[nObjs] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Title (%s) >>\nendobj\n", nObjs, title)
		infoRef = fmt.Sprintf(" /Info %d 0 R", nObjs)
	}

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", nObjs+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= nObjs; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", nObjs+1, infoRef, xrefOffset)

	return []byte(b.String())
}
