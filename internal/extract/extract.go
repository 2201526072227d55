// Package extract turns a classified payload into a normalized record, one
// extractor per format. Every extractor produces a usable record even when
// the advisor is absent or fails, and journals its output to the audit log.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/audit"
	"github.com/hurttlocker/mira/internal/document"
	"github.com/hurttlocker/mira/internal/logging"
)

// Journal is the part of the audit log an extractor writes through.
type Journal interface {
	InputTimestamp(ctx context.Context, inputID int64) (time.Time, error)
	LogExtractedFields(ctx context.Context, inputID int64, agent string, payload any, correlationID string) error
}

// Extractor handles one format.
type Extractor interface {
	Format() document.Format
	Extract(ctx context.Context, payload document.Payload, inputID int64) (Record, error)
}

// Config is shared by all extractors.
type Config struct {
	Journal Journal
	Advisor advisor.Advisor // nil = disabled
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	c.Advisor = advisor.OrDisabled(c.Advisor)
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// base carries what every extractor needs.
type base struct {
	journal Journal
	advisor advisor.Advisor
	logger  *slog.Logger
	agent   string
}

func newBase(cfg Config, agent string) (base, error) {
	if cfg.Journal == nil {
		return base{}, fmt.Errorf("%s: journal is nil", agent)
	}
	cfg.defaults()
	return base{
		journal: cfg.Journal,
		advisor: cfg.Advisor,
		logger:  cfg.Logger.With("agent", agent),
		agent:   agent,
	}, nil
}

// processedAt returns the input's log time, or nil when the input is
// unknown to the journal.
func (b base) processedAt(ctx context.Context, inputID int64) (*time.Time, error) {
	ts, err := b.journal.InputTimestamp(ctx, inputID)
	if errors.Is(err, audit.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading input timestamp: %w", b.agent, err)
	}
	return &ts, nil
}

// adviceFailed logs an advisor error at a level matching its cause.
func (b base) adviceFailed(inputID int64, err error) {
	if errors.Is(err, advisor.ErrUnavailable) {
		b.logger.Debug("advisor disabled, using deterministic extraction", logging.FieldInputID, inputID)
		return
	}
	b.logger.Warn("advisor failed, using deterministic extraction", logging.FieldInputID, inputID, logging.FieldError, err)
}

func (b base) journalRecord(ctx context.Context, inputID int64, rec Record, correlationID string) error {
	if err := b.journal.LogExtractedFields(ctx, inputID, b.agent, rec, correlationID); err != nil {
		return fmt.Errorf("%s: %w", b.agent, err)
	}
	b.logger.Info("extracted fields logged", logging.FieldInputID, inputID, "correlation_id", correlationID)
	return nil
}
