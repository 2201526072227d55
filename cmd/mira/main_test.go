package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hurttlocker/mira/internal/document"
)

// runCLI executes the root command against an isolated config and database.
func runCLI(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MIRA_LLM", "")
	t.Setenv("MIRA_DB", "")
	t.Setenv("MIRA_DB_PATH", "")

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{
		"--config", filepath.Join(dir, "config.yaml"),
		"--db", filepath.Join(dir, "audit.db"),
		"--llm", "none",
		"--log-level", "error",
	}
	cmd.SetArgs(append(args, base...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "mira "+version+"\n" {
		t.Errorf("output = %q", out)
	}
}

func TestIngestJSONFileThenShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order.json")
	if err := os.WriteFile(path, []byte(`{"id": "PO-9", "note": "invoice for March"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, dir, "", "ingest", path)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	var res struct {
		Metadata struct {
			MissingFields []string `json:"missing_fields"`
		} `json:"metadata"`
		InputMetadata struct {
			ID     int64  `json:"id"`
			Format string `json:"format"`
			Intent string `json:"intent"`
		} `json:"input_metadata"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("ingest output is not JSON: %v\n%s", err, out)
	}
	if res.InputMetadata.ID != 1 || res.InputMetadata.Format != "json" || res.InputMetadata.Intent != "invoice" {
		t.Errorf("input_metadata = %+v", res.InputMetadata)
	}
	if len(res.Metadata.MissingFields) != 1 || res.Metadata.MissingFields[0] != "timestamp" {
		t.Errorf("missing_fields = %v", res.Metadata.MissingFields)
	}

	out, err = runCLI(t, dir, "", "show", "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var shown struct {
		Input struct {
			Source string `json:"source"`
			Type   string `json:"type"`
		} `json:"input"`
		ExtractedFields []struct {
			Agent    string `json:"agent"`
			ThreadID string `json:"thread_id"`
		} `json:"extracted_fields"`
	}
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out)
	}
	if shown.Input.Source != cliSource || shown.Input.Type != "json" {
		t.Errorf("input = %+v", shown.Input)
	}
	if len(shown.ExtractedFields) != 1 || shown.ExtractedFields[0].ThreadID != "thread_1" {
		t.Errorf("extracted_fields = %+v", shown.ExtractedFields)
	}
}

func TestIngestStdinEmail(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "From: a@b.com\nSubject: Urgent RFQ\n", "ingest", "-", "--type", "email")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !strings.Contains(out, `"urgency": "high"`) || !strings.Contains(out, `"sender": "a@b.com"`) {
		t.Errorf("unexpected email record:\n%s", out)
	}
}

func TestIngestUnsupported(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "just some words", "ingest", "-")
	if err == nil || !strings.Contains(err.Error(), "unsupported format unknown") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestIngestErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCLI(t, dir, "", "ingest", filepath.Join(dir, "missing.pdf")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := runCLI(t, dir, "", "ingest", "-"); err == nil {
		t.Error("expected error for empty stdin")
	}
	if _, err := runCLI(t, dir, "{bad", "ingest", "-", "--type", "json"); err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Errorf("expected invalid JSON error, got %v", err)
	}
	if _, err := runCLI(t, dir, "x", "ingest", "-", "--type", "fax"); err == nil {
		t.Error("expected error for bad --type")
	}
}

func TestShowErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := runCLI(t, dir, "", "show", "abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
	if _, err := runCLI(t, dir, "", "show", "42"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestResolveInputType(t *testing.T) {
	tests := []struct {
		flag, path string
		want       document.InputType
	}{
		{"", "a.json", document.InputJSON},
		{"", "a.JSON", document.InputJSON},
		{"", "mail.eml", document.InputEmail},
		{"", "doc.pdf", document.InputFile},
		{"", "-", document.InputFile},
		{"Email", "a.json", document.InputEmail},
		{"file", "a.json", document.InputFile},
	}
	for _, tt := range tests {
		got, err := resolveInputType(tt.flag, tt.path)
		if err != nil {
			t.Fatalf("resolveInputType(%q, %q): %v", tt.flag, tt.path, err)
		}
		if got != tt.want {
			t.Errorf("resolveInputType(%q, %q) = %q, want %q", tt.flag, tt.path, got, tt.want)
		}
	}
	if _, err := resolveInputType("xml", "a"); err == nil {
		t.Error("expected error for unknown type")
	}
}
