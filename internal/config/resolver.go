// Package config resolves settings from a YAML file, MIRA_* environment
// variables and CLI flags, in increasing precedence. Every value records
// where it came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath         = "~/.mira/audit.db"
	DefaultListenAddr     = "127.0.0.1:8000"
	DefaultLLMTimeout     = "30s"
	DefaultMaxUploadBytes = "33554432" // 32 MiB
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath    string
	CLILLM        string
	CLIDBPath     string
	CLIListenAddr string
	CLILogLevel   string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath         ResolvedValue `json:"db_path"`
	ListenAddr     ResolvedValue `json:"listen_addr"`
	LLMProvider    ResolvedValue `json:"llm_provider"`
	LLMTimeout     ResolvedValue `json:"llm_timeout"`
	MaxUploadBytes ResolvedValue `json:"max_upload_bytes"`
	LogLevel       ResolvedValue `json:"log_level"`
	LogFormat      ResolvedValue `json:"log_format"`

	LLMKeys map[string]ResolvedValue `json:"-"`
}

type fileConfig struct {
	DBPath         string `yaml:"db_path"`
	ListenAddr     string `yaml:"listen_addr"`
	MaxUploadBytes string `yaml:"max_upload_bytes"`
	LLM            struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Timeout  string `yaml:"timeout"`
	} `yaml:"llm"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mira", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
	}
	setDefault(&out.DBPath, DefaultDBPath)
	setDefault(&out.ListenAddr, DefaultListenAddr)
	setDefault(&out.LLMTimeout, DefaultLLMTimeout)
	setDefault(&out.MaxUploadBytes, DefaultMaxUploadBytes)
	setDefault(&out.LogLevel, DefaultLogLevel)
	setDefault(&out.LogFormat, DefaultLogFormat)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.ListenAddr, cfg.ListenAddr, SourceConfig, path)
		apply(&out.MaxUploadBytes, cfg.MaxUploadBytes, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMTimeout, cfg.LLM.Timeout, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
		apply(&out.LogFormat, cfg.Log.Format, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Provider)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "MIRA_DB")
	applyEnv(&out.DBPath, "MIRA_DB_PATH")
	applyEnv(&out.ListenAddr, "MIRA_LISTEN_ADDR")
	applyEnv(&out.MaxUploadBytes, "MIRA_MAX_UPLOAD_BYTES")
	applyEnv(&out.LLMProvider, "MIRA_LLM")
	applyEnv(&out.LLMTimeout, "MIRA_LLM_TIMEOUT")
	applyEnv(&out.LogLevel, "MIRA_LOG_LEVEL")
	applyEnv(&out.LogFormat, "MIRA_LOG_FORMAT")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			// GEMINI_API_KEY wins over GOOGLE_API_KEY.
			if cur, ok := out.LLMKeys[provider]; ok && cur.From == "GEMINI_API_KEY" {
				continue
			}
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}
	if v := strings.TrimSpace(os.Getenv("MIRA_LLM_API_KEY")); v != "" {
		p := providerOf(out.LLMProvider.Value)
		if p == "" {
			p = "default"
		}
		out.LLMKeys[p] = ResolvedValue{Value: v, Source: SourceEnv, From: "MIRA_LLM_API_KEY"}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.ListenAddr, opts.CLIListenAddr, SourceCLI, "--addr")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)

	if _, err := out.Timeout(); err != nil {
		return out, err
	}
	if _, err := out.UploadLimit(); err != nil {
		return out, err
	}
	return out, nil
}

// Timeout parses llm.timeout.
func (r ResolvedConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(r.LLMTimeout.Value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid llm timeout %q (from %s): must be a positive duration", r.LLMTimeout.Value, describe(r.LLMTimeout))
	}
	return d, nil
}

// UploadLimit parses max_upload_bytes.
func (r ResolvedConfig) UploadLimit() (int64, error) {
	n, err := strconv.ParseInt(r.MaxUploadBytes.Value, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid max_upload_bytes %q (from %s): must be a positive integer", r.MaxUploadBytes.Value, describe(r.MaxUploadBytes))
	}
	return n, nil
}

func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func describe(v ResolvedValue) string {
	if v.From != "" {
		return v.From
	}
	return string(v.Source)
}

func setDefault(dst *ResolvedValue, v string) {
	*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
