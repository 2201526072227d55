// Package mcp exposes the intake pipeline as Model Context Protocol tools so
// agents can submit documents and read back their audit trail. It is served
// over stdio by the mira mcp command.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/mira/internal/audit"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/extract"
	"github.com/hurttlocker/mira/internal/logging"
	"github.com/hurttlocker/mira/internal/pipeline"
)

// Source is recorded in the audit log for inputs submitted over MCP.
const Source = "mcp"

// Ingester runs one request through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// AuditReader reads back inputs and their extraction events.
type AuditReader interface {
	GetInput(ctx context.Context, inputID int64) (*audit.InputEvent, error)
	GetExtractedFields(ctx context.Context, inputID int64) ([]*audit.ExtractedFieldsEvent, error)
	Stats(ctx context.Context) (inputs, extracted int64, err error)
}

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Pipeline Ingester
	Audit    AuditReader
	Version  string // version string for MCP server info
	Logger   *slog.Logger
}

// NewServer creates a configured MCP server with the intake tools and the
// stats resource.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := server.NewMCPServer(
		"Mira",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
		server.WithRecovery(),
	)

	registerIngestTool(s, cfg.Pipeline, cfg.Logger)
	registerGetInputTool(s, cfg.Audit)
	registerStatsResource(s, cfg.Audit)

	return s
}

// --- Tools ---

func registerIngestTool(s *server.MCPServer, p Ingester, logger *slog.Logger) {
	tool := mcp.NewTool("mira_ingest",
		mcp.WithDescription("Classify a document (JSON, email or file such as a PDF), extract normalized fields with the matching extractor, and record both steps in the audit log. Returns the extracted record with input_metadata."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Document content: JSON text, email text, or file bytes (base64-encoded when base64 is true)"),
		),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("How the content arrived: json, email or file. Files are sniffed for their format."),
			mcp.Enum("json", "email", "file"),
		),
		mcp.WithBoolean("base64",
			mcp.Description("Decode content from standard base64 before ingesting (file type only, default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcp.NewToolResultError("content is required"), nil
		}
		if strings.TrimSpace(content) == "" {
			return mcp.NewToolResultError("No input provided"), nil
		}
		inputType, err := req.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError("type is required"), nil
		}

		pr, err := buildRequest(content, inputType, req.GetBool("base64", false))
		var jerr *invalidJSONError
		if errors.As(err, &jerr) {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid JSON data: %v", jerr.err)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := p.Ingest(ctx, pr)
		if err != nil {
			var unsupported *pipeline.UnsupportedFormatError
			if errors.As(err, &unsupported) {
				return mcp.NewToolResultError(fmt.Sprintf("Unsupported format: %s (input %d)", unsupported.Format, unsupported.InputID)), nil
			}
			logger.Error("mcp ingest failed", logging.FieldError, err)
			return mcp.NewToolResultError(fmt.Sprintf("ingest error: %v", err)), nil
		}

		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}

// invalidJSONError reports json content that does not parse.
type invalidJSONError struct{ err error }

func (e *invalidJSONError) Error() string { return "invalid JSON data: " + e.err.Error() }
func (e *invalidJSONError) Unwrap() error { return e.err }

func buildRequest(content, inputType string, isBase64 bool) (pipeline.Request, error) {
	req := pipeline.Request{Source: Source, Type: document.InputType(inputType)}
	switch req.Type {
	case document.InputJSON:
		v, err := extract.ParseJSONText(content)
		if err != nil {
			return req, &invalidJSONError{err: err}
		}
		req.Payload = document.FromValue(v)
	case document.InputEmail:
		req.Payload = document.FromText(content)
	case document.InputFile:
		data := []byte(content)
		if isBase64 {
			decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(content))
			if err != nil {
				return req, fmt.Errorf("invalid base64 content: %v", err)
			}
			data = decoded
		}
		req.Payload = document.FromBytes(data)
	default:
		return req, fmt.Errorf("invalid type %q: use json, email or file", inputType)
	}
	return req, nil
}

func registerGetInputTool(s *server.MCPServer, a AuditReader) {
	tool := mcp.NewTool("mira_get_input",
		mcp.WithDescription("Read an ingested input from the audit log together with every extraction event recorded for it."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Input id returned in input_metadata.id"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("id")
		if err != nil || id <= 0 {
			return mcp.NewToolResultError("id must be a positive integer"), nil
		}

		in, err := a.GetInput(ctx, int64(id))
		if errors.Is(err, audit.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("input %d not found", id)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading input: %v", err)), nil
		}
		events, err := a.GetExtractedFields(ctx, int64(id))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("reading extracted fields: %v", err)), nil
		}

		data, err := json.MarshalIndent(map[string]any{
			"input":            in,
			"extracted_fields": events,
		}, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	})
}
