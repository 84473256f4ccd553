package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hurttlocker/ownerscan/internal/config"
	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/provider"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

const defaultListenAddr = config.DefaultListenAddr

// resolveSettings merges global flags with per-command flag values.
func resolveSettings(opts config.ResolveOptions) (config.ResolvedConfig, error) {
	opts.ConfigPath = globalConfigPath
	if opts.CLIProvidersFile == "" {
		opts.CLIProvidersFile = globalProvidersFile
	}
	if opts.CLILogLevel == "" {
		opts.CLILogLevel = globalLogLevel
	}
	if globalVerbose {
		opts.CLILogLevel = "debug"
	}
	return config.ResolveConfig(opts)
}

// newLogger builds a zap logger. Services log JSON; interactive commands log
// human-readable lines to stderr. A non-empty logFile adds a size-rotated
// JSON file sink.
func newLogger(level string, service bool, logFile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if service {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.DisableStacktrace = true
		cfg.DisableCaller = true
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if logFile == "" {
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
	fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), rotating, cfg.Level)
	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// buildEngine loads the provider catalog and applies the configured default.
func buildEngine(cfg config.ResolvedConfig) (*extract.Engine, error) {
	reg, err := provider.LoadCatalogFile(cfg.ProvidersFile.Value)
	if err != nil {
		return nil, fmt.Errorf("loading providers: %w", err)
	}
	reg, err = reg.WithDefault(cfg.DefaultProvider.Value)
	if err != nil {
		return nil, fmt.Errorf("default_provider (from %s): %w", cfg.DefaultProvider.From, err)
	}
	return extract.NewEngine(reg), nil
}

// buildSource wires PDF and plain-text acquisition.
func buildSource(cfg config.ResolvedConfig, logger *zap.Logger) textsource.Source {
	pdf := textsource.NewPDFToText(textsource.PDFToTextConfig{Binary: cfg.PDFToText.Value}, nil, logger)
	return textsource.Auto{PDF: pdf, Plain: textsource.Plain{}}
}
