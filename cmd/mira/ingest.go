package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/mira/internal/audit"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/extract"
	"github.com/hurttlocker/mira/internal/pipeline"
)

// cliSource is recorded in the audit log for inputs ingested from the CLI.
const cliSource = "cli"

type ingestOptions struct {
	*rootOptions
	Type string
}

func newIngestCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &ingestOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <path>|-",
		Short: "Ingest one file (or stdin) and print the extracted record",
		Long: `Ingest one file, or stdin when the path is "-", and print the
extracted record as JSON.

Without --type, .json files are ingested as json, .eml files as email and
everything else as a file whose format is sniffed from its content.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "input type (json|email|file)")

	return cmd
}

func runIngest(cmd *cobra.Command, opts *ingestOptions, path string) error {
	data, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	inputType, err := resolveInputType(opts.Type, path)
	if err != nil {
		return err
	}
	req, err := newRequest(inputType, data)
	if err != nil {
		return err
	}

	a, err := openApp(opts.rootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.pipeline.Ingest(cmd.Context(), req)
	if err != nil {
		var unsupported *pipeline.UnsupportedFormatError
		if errors.As(err, &unsupported) {
			return fmt.Errorf("unsupported format %s (logged as input %d)", unsupported.Format, unsupported.InputID)
		}
		return err
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// resolveInputType honours an explicit --type and otherwise guesses from
// the file extension.
func resolveInputType(flag, path string) (document.InputType, error) {
	switch t := document.InputType(strings.ToLower(strings.TrimSpace(flag))); t {
	case document.InputJSON, document.InputEmail, document.InputFile:
		return t, nil
	case "":
	default:
		return "", fmt.Errorf("invalid --type %q: use json, email or file", flag)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return document.InputJSON, nil
	case ".eml":
		return document.InputEmail, nil
	default:
		return document.InputFile, nil
	}
}

func newRequest(inputType document.InputType, data []byte) (pipeline.Request, error) {
	req := pipeline.Request{Source: cliSource, Type: inputType}
	if len(data) == 0 {
		return req, pipeline.ErrNoInput
	}
	switch inputType {
	case document.InputJSON:
		v, err := extract.ParseJSONText(string(data))
		if err != nil {
			return req, fmt.Errorf("invalid JSON data: %w", err)
		}
		req.Payload = document.FromValue(v)
	case document.InputEmail:
		req.Payload = document.FromText(string(data))
	default:
		req.Payload = document.FromBytes(data)
	}
	return req, nil
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print an input and its extraction events from the audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid input id %q", args[0])
			}

			a, err := openApp(opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			in, err := a.store.GetInput(cmd.Context(), id)
			if errors.Is(err, audit.ErrNotFound) {
				return fmt.Errorf("input %d not found", id)
			}
			if err != nil {
				return err
			}
			events, err := a.store.GetExtractedFields(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"input":            in,
				"extracted_fields": events,
			})
		},
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
