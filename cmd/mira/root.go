package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/hurttlocker/mira/internal/advisor"
	"github.com/hurttlocker/mira/internal/audit"
	"github.com/hurttlocker/mira/internal/config"
	"github.com/hurttlocker/mira/internal/llm"
	"github.com/hurttlocker/mira/internal/logging"
	"github.com/hurttlocker/mira/internal/metrics"
	"github.com/hurttlocker/mira/internal/pipeline"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	DBPath     string
	LLM        string
	LogLevel   string

	// set by serve
	ListenAddr string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "mira",
		Short: "Mira classifies and extracts business documents",
		Long: `Mira classifies incoming JSON, email and PDF content by format and
business intent, extracts structured fields and keeps an audit trail of
every input and extraction in SQLite.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.mira/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "audit database path")
	cmd.PersistentFlags().StringVar(&opts.LLM, "llm", "", `advisor model as provider/model, e.g. google/gemini-1.5-flash ("none" disables)`)
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newIngestCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newMCPCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mira %s\n", version)
		},
	}
}

// app is the wired set of components shared by the commands.
type app struct {
	cfg      config.ResolvedConfig
	logger   *slog.Logger
	store    *audit.Store
	metrics  *metrics.Metrics
	pipeline *pipeline.Pipeline
}

// openApp resolves configuration and wires the audit store, advisor and
// pipeline. Logs go to logOut. The caller must call close.
func openApp(opts *rootOptions, logOut io.Writer) (*app, error) {
	cfg, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath:    opts.ConfigPath,
		CLILLM:        opts.LLM,
		CLIDBPath:     opts.DBPath,
		CLIListenAddr: opts.ListenAddr,
		CLILogLevel:   opts.LogLevel,
	})
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}

	logger := logging.New(logOut, cfg.LogLevel.Value, cfg.LogFormat.Value)
	m := metrics.New()

	adv, err := newAdvisor(cfg, timeout, m, logger)
	if err != nil {
		return nil, err
	}

	st, err := audit.Open(audit.Config{DBPath: cfg.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}

	p, err := pipeline.New(pipeline.Config{
		Log:     st,
		Advisor: adv,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: st, metrics: m, pipeline: p}, nil
}

func (a *app) close() error {
	return a.store.Close()
}

// newAdvisor returns nil when no provider is configured.
func newAdvisor(cfg config.ResolvedConfig, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) (advisor.Advisor, error) {
	llmCfg, err := llm.ParseLLMFlag(cfg.LLMProvider.Value)
	if err != nil {
		return nil, err
	}
	if !llmCfg.Enabled() {
		logger.Info("advisor disabled, using rules only")
		return nil, nil
	}
	llmCfg.APIKey = cfg.APIKeyForProvider(llmCfg.Provider).Value

	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("configuring advisor: %w", err)
	}
	adv, err := advisor.NewLLM(advisor.LLMConfig{
		Provider: provider,
		Timeout:  timeout,
		Logger:   logger,
		Observe:  m.ObserveAdvisor,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("advisor enabled", "provider", adv.Name(), "source", cfg.LLMProvider.Source)
	return adv, nil
}
