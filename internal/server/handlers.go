package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hurttlocker/mira/internal/audit"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/extract"
	"github.com/hurttlocker/mira/internal/logging"
	"github.com/hurttlocker/mira/internal/pipeline"
)

const noInputDetail = "Please provide either a file, JSON data, or email text"

// handleIntake accepts a form with one of file, json_data or email_text,
// checked in that order.
// POST /intake
func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), s.logger)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	if err := parseForm(r); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large",
				fmt.Sprintf("limit is %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid form data", err.Error())
		return
	}

	req, status, body := intakeRequest(r)
	if body != nil {
		writeJSON(w, status, body)
		return
	}

	res, err := s.cfg.Pipeline.Ingest(r.Context(), req)
	if err != nil {
		var unsupported *pipeline.UnsupportedFormatError
		switch {
		case errors.As(err, &unsupported):
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported format: %s", unsupported.Format), "")
		case errors.Is(err, pipeline.ErrNoInput):
			writeError(w, http.StatusBadRequest, "No input provided", noInputDetail)
		case errors.Is(err, context.Canceled):
			logger.Info("intake cancelled by client")
		default:
			logger.Error("intake failed", logging.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}

// intakeRequest builds the pipeline request from a parsed form. A non-nil
// body is an error response to send instead.
func intakeRequest(r *http.Request) (pipeline.Request, int, any) {
	if f, hdr, err := r.FormFile("file"); err == nil {
		defer f.Close()
		if hdr.Filename != "" {
			data, err := io.ReadAll(f)
			if err != nil {
				return pipeline.Request{}, http.StatusBadRequest, errorBody{Error: "Invalid file upload", Detail: err.Error()}
			}
			return pipeline.Request{Type: document.InputFile, Payload: document.FromBytes(data)}, 0, nil
		}
	}

	if raw := r.FormValue("json_data"); strings.TrimSpace(raw) != "" {
		v, err := extract.ParseJSONText(raw)
		if err != nil {
			return pipeline.Request{}, http.StatusBadRequest, errorBody{Error: "Invalid JSON data", Detail: err.Error()}
		}
		return pipeline.Request{Type: document.InputJSON, Payload: document.FromValue(v)}, 0, nil
	}

	if text := r.FormValue("email_text"); strings.TrimSpace(text) != "" {
		return pipeline.Request{Type: document.InputEmail, Payload: document.FromText(text)}, 0, nil
	}

	return pipeline.Request{}, http.StatusBadRequest, errorBody{Error: "No input provided", Detail: noInputDetail}
}

type inputResponse struct {
	Input           *audit.InputEvent             `json:"input"`
	ExtractedFields []*audit.ExtractedFieldsEvent `json:"extracted_fields"`
}

// GET /inputs/{id}
func (s *Server) handleGetInput(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid input id", "")
		return
	}

	in, err := s.cfg.Inputs.GetInput(r.Context(), id)
	if errors.Is(err, audit.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Input not found", "")
		return
	}
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("reading input", logging.FieldInputID, id, logging.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	events, err := s.cfg.Inputs.GetExtractedFields(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context(), s.logger).Error("reading extracted fields", logging.FieldInputID, id, logging.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, inputResponse{Input: in, ExtractedFields: events})
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}
