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

// Built-in defaults, lowest precedence.
const (
	DefaultListenAddr = "127.0.0.1:8080"
	DefaultPDFToText  = "pdftotext"
	DefaultLogLevel   = "info"
	DefaultRetention  = "24h"
	DefaultDBPath     = "~/.ownerscan/jobs.db"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// ResolveOptions carries CLI flag values; empty means "not given".
type ResolveOptions struct {
	ConfigPath       string
	CLIProvider      string
	CLIProvidersFile string
	CLIDBPath        string
	CLIListenAddr    string
	CLIRemoteURL     string
	CLILogLevel      string
	CLIPDFToText     string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	ProvidersFile   ResolvedValue `json:"providers_file"`
	DefaultProvider ResolvedValue `json:"default_provider"`
	DBPath          ResolvedValue `json:"db_path"`
	ListenAddr      ResolvedValue `json:"listen_addr"`
	Retention       ResolvedValue `json:"retention"`
	PDFToText       ResolvedValue `json:"pdftotext"`
	UploadRate      ResolvedValue `json:"upload_rate"`
	RemoteURL       ResolvedValue `json:"remote_url"`
	LogLevel        ResolvedValue `json:"log_level"`
	LogFile         ResolvedValue `json:"log_file"`
}

type fileConfig struct {
	ProvidersFile   string `yaml:"providers_file"`
	DefaultProvider string `yaml:"default_provider"`
	DBPath          string `yaml:"db_path"`
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	PDFToText       string `yaml:"pdftotext"`
	Server          struct {
		ListenAddr string `yaml:"listen_addr"`
		Retention  string `yaml:"retention"`
		UploadRate string `yaml:"upload_rate"`
	} `yaml:"server"`
	Remote struct {
		URL string `yaml:"url"`
	} `yaml:"remote"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ownerscan", "config.yaml")
}

// ResolveConfig layers built-in defaults, the YAML config file, OWNERSCAN_*
// environment variables and CLI flags, later layers winning.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("OWNERSCAN_CONFIG"))
	}
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	const builtin = "built-in default"
	apply(&out.DBPath, DefaultDBPath, SourceDefault, builtin)
	apply(&out.ListenAddr, DefaultListenAddr, SourceDefault, builtin)
	apply(&out.Retention, DefaultRetention, SourceDefault, builtin)
	apply(&out.PDFToText, DefaultPDFToText, SourceDefault, builtin)
	apply(&out.LogLevel, DefaultLogLevel, SourceDefault, builtin)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.ProvidersFile, cfg.ProvidersFile, SourceConfig, path)
		apply(&out.DefaultProvider, cfg.DefaultProvider, SourceConfig, path)
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		apply(&out.LogFile, cfg.LogFile, SourceConfig, path)
		apply(&out.PDFToText, cfg.PDFToText, SourceConfig, path)
		apply(&out.ListenAddr, cfg.Server.ListenAddr, SourceConfig, path)
		apply(&out.Retention, cfg.Server.Retention, SourceConfig, path)
		apply(&out.UploadRate, cfg.Server.UploadRate, SourceConfig, path)
		apply(&out.RemoteURL, cfg.Remote.URL, SourceConfig, path)
	}

	applyEnv(&out.ProvidersFile, "OWNERSCAN_PROVIDERS_FILE")
	applyEnv(&out.DefaultProvider, "OWNERSCAN_PROVIDER")
	applyEnv(&out.DBPath, "OWNERSCAN_DB")
	applyEnv(&out.DBPath, "OWNERSCAN_DB_PATH")
	applyEnv(&out.LogLevel, "OWNERSCAN_LOG_LEVEL")
	applyEnv(&out.LogFile, "OWNERSCAN_LOG_FILE")
	applyEnv(&out.PDFToText, "OWNERSCAN_PDFTOTEXT")
	applyEnv(&out.ListenAddr, "OWNERSCAN_LISTEN_ADDR")
	applyEnv(&out.Retention, "OWNERSCAN_RETENTION")
	applyEnv(&out.UploadRate, "OWNERSCAN_UPLOAD_RATE")
	applyEnv(&out.RemoteURL, "OWNERSCAN_REMOTE_URL")

	apply(&out.ProvidersFile, opts.CLIProvidersFile, SourceCLI, "--providers-file")
	apply(&out.DefaultProvider, opts.CLIProvider, SourceCLI, "--provider")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.LogLevel, opts.CLILogLevel, SourceCLI, "--log-level")
	apply(&out.PDFToText, opts.CLIPDFToText, SourceCLI, "--pdftotext")
	apply(&out.ListenAddr, opts.CLIListenAddr, SourceCLI, "--addr")
	apply(&out.RemoteURL, opts.CLIRemoteURL, SourceCLI, "--remote")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.ProvidersFile.Value = expandUserPath(out.ProvidersFile.Value)
	out.LogFile.Value = expandUserPath(out.LogFile.Value)

	return out, nil
}

// RetentionDuration parses the job retention window.
func (r ResolvedConfig) RetentionDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.Retention.Value)
	if err != nil {
		return 0, fmt.Errorf("retention %q (from %s): %w", r.Retention.Value, r.Retention.From, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("retention %q (from %s) must be positive", r.Retention.Value, r.Retention.From)
	}
	return d, nil
}

// UploadRatePerSecond parses the upload rate limit; 0 means unlimited.
func (r ResolvedConfig) UploadRatePerSecond() (float64, error) {
	if r.UploadRate.Value == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(r.UploadRate.Value, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("upload_rate %q (from %s) must be a non-negative number", r.UploadRate.Value, r.UploadRate.From)
	}
	return v, nil
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
