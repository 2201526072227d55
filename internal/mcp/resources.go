package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerStatsResource(s *server.MCPServer, a AuditReader) {
	resource := mcp.NewResource(
		"mira://stats",
		"Audit Statistics",
		mcp.WithResourceDescription("Number of inputs and extraction events in the audit log."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		inputs, extracted, err := a.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting stats: %w", err)
		}

		data, err := json.MarshalIndent(map[string]int64{
			"inputs":           inputs,
			"extracted_fields": extracted,
		}, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding stats: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
