package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/llm"
	"github.com/hurttlocker/mira/internal/logging"
)

const (
	// DefaultTimeout bounds a single advisor call.
	DefaultTimeout = 30 * time.Second

	// maxPromptContent caps the document text placed in a prompt.
	maxPromptContent = 4000
)

// LLMConfig configures an LLMAdvisor.
type LLMConfig struct {
	Provider llm.Provider
	Timeout  time.Duration
	Logger   *slog.Logger
	// Observe, when set, is called once per call with its task and result.
	Observe func(task string, err error)
}

// LLMAdvisor implements Advisor on top of an llm.Provider.
type LLMAdvisor struct {
	provider llm.Provider
	timeout  time.Duration
	logger   *slog.Logger
	observe  func(string, error)
}

var _ Advisor = (*LLMAdvisor)(nil)

// NewLLM creates an LLMAdvisor. It returns an error when no provider is set.
func NewLLM(cfg LLMConfig) (*LLMAdvisor, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("LLM provider is nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LLMAdvisor{
		provider: cfg.Provider,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		observe:  cfg.Observe,
	}, nil
}

// Name returns the underlying provider name.
func (a *LLMAdvisor) Name() string { return a.provider.Name() }

func (a *LLMAdvisor) complete(ctx context.Context, task, prompt string, opts llm.CompletionOpts) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.provider.Complete(callCtx, prompt, opts)
	a.logger.Debug("advisor call",
		"task", task,
		"provider", a.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil,
	)
	if err != nil {
		return "", fmt.Errorf("advisor %s call: %w", task, err)
	}
	return resp, nil
}

func (a *LLMAdvisor) done(task string, err error) {
	if a.observe != nil {
		a.observe(task, err)
	}
}

// ClassifyContent asks for one category name. A reply that is not one of
// categories (case-insensitive) maps to categories[0].
func (a *LLMAdvisor) ClassifyContent(ctx context.Context, text string, categories []string) (cat string, err error) {
	defer func() { a.done(TaskClassify, err) }()
	if len(categories) == 0 {
		return "", fmt.Errorf("classify: no categories")
	}

	prompt := fmt.Sprintf(`Classify the following content into one of these categories: %s.
Respond with only the category name, nothing else.

Content:
%s`, strings.Join(categories, ", "), document.TruncateRunes(text, maxPromptContent))

	resp, err := a.complete(ctx, TaskClassify, prompt, llm.CompletionOpts{Temperature: 0, MaxTokens: 20})
	if err != nil {
		return "", err
	}
	answer := strings.ToLower(strings.TrimSpace(stripCodeFences(resp)))
	for _, c := range categories {
		if strings.ToLower(c) == answer {
			return c, nil
		}
	}
	return categories[0], nil
}

// ExtractEmailMetadata asks for sender, subject, intent, urgency and
// summary. A reply that is not JSON is salvaged from "key: value" lines.
func (a *LLMAdvisor) ExtractEmailMetadata(ctx context.Context, text string) (md EmailMetadata, err error) {
	defer func() { a.done(TaskEmail, err) }()

	prompt := `Extract the following information from this email:
- Sender: The email address or name of the sender
- Subject: The email subject line
- Intent: The purpose of the email (options: rfq, invoice, complaint, regulation, inquiry, other)
- Urgency: How urgent is this email (options: high, normal, low)
- Summary: A brief 1-2 sentence summary of the email content

Format your response as a clean JSON object with the keys 'sender', 'subject', 'intent', 'urgency', and 'summary'.
Don't include any markdown formatting, just pure JSON.

Email:
` + document.TruncateRunes(text, maxPromptContent)

	resp, err := a.complete(ctx, TaskEmail, prompt, llm.CompletionOpts{Temperature: 0.1, Format: "json"})
	if err != nil {
		return EmailMetadata{}, err
	}
	if err := decodeReply(resp, &md); err != nil {
		if !errors.Is(err, ErrMalformedResponse) {
			return EmailMetadata{}, err
		}
		a.logger.Warn("email advisor reply not JSON, salvaging key/value lines", logging.FieldError, err)
		return salvageEmailReply(resp), nil
	}
	return md, nil
}

// AnalyzeJSON asks for an eight-field description of data.
func (a *LLMAdvisor) AnalyzeJSON(ctx context.Context, data map[string]any) (out JSONAnalysis, err error) {
	defer func() { a.done(TaskJSON, err) }()

	pretty, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return JSONAnalysis{}, fmt.Errorf("encoding JSON for prompt: %w", err)
	}

	prompt := `Analyze this JSON data and provide a comprehensive analysis in clear, simple English:

1. Main entities: List the primary objects or entities represented in this data
2. Structure analysis: Describe the overall structure and organization of this JSON
3. Key data points: Identify the most important information contained in this data
4. Missing fields: Identify any critical fields that appear to be missing
5. Data quality: Assess the completeness and quality of the data (good, fair, poor)
6. Purpose: What is the likely purpose or use case for this data?
7. Insights: Extract 3-4 key insights from this data that would be valuable to a user
8. Summary: Provide a 2-3 sentence plain English summary explaining what this JSON represents

Format your response as a clean JSON object with these keys:
- 'main_entities' (as array)
- 'structure_description' (as string)
- 'key_data_points' (as array)
- 'missing_fields' (as array)
- 'data_quality' (as string)
- 'likely_purpose' (as string)
- 'insights' (as array)
- 'summary' (as string)

Don't include any markdown formatting, just pure JSON.

JSON Data:
` + document.TruncateRunes(string(pretty), maxPromptContent)

	resp, err := a.complete(ctx, TaskJSON, prompt, llm.CompletionOpts{Temperature: 0.2, Format: "json"})
	if err != nil {
		return JSONAnalysis{}, err
	}
	if err := decodeReply(resp, &out); err != nil {
		return JSONAnalysis{}, err
	}
	return out, nil
}

// AnalyzePDF asks for the document type, a summary, topics and next steps.
func (a *LLMAdvisor) AnalyzePDF(ctx context.Context, text string, sizeBytes int) (out PDFAnalysis, err error) {
	defer func() { a.done(TaskPDF, err) }()

	prompt := fmt.Sprintf(`Based on this extracted PDF content, analyze the document and provide:
- Likely document type: (report, invoice, manual, article, etc.)
- Estimated page count: how many pages the full document likely has
- Key content summary: A brief 2-3 sentence summary of the main content
- Topics: 2-3 likely topics covered in this document
- Recommended next steps: What should be done with this document

Format your response as a clean JSON object with the keys 'likely_document_type', 'estimated_page_count', 'content_summary', 'topics' (as array), and 'recommended_next_steps' (as array).
Don't include any markdown formatting, just pure JSON.

PDF Content:
%s
Size: %d bytes`, document.TruncateRunes(text, maxPromptContent), sizeBytes)

	resp, err := a.complete(ctx, TaskPDF, prompt, llm.CompletionOpts{Temperature: 0.2, Format: "json"})
	if err != nil {
		return PDFAnalysis{}, err
	}
	if err := decodeReply(resp, &out); err != nil {
		return PDFAnalysis{}, err
	}
	return out, nil
}
