package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hurttlocker/ownerscan/internal/config"
	"github.com/hurttlocker/ownerscan/internal/mcp"
	"github.com/hurttlocker/ownerscan/internal/pipeline"
	"github.com/hurttlocker/ownerscan/internal/server"
	"github.com/hurttlocker/ownerscan/internal/store"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "", "listen address")
	dbPath := fs.String("db", "", "job database path")
	workers := fs.Int("workers", server.DefaultWorkers, "extraction workers")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%v\nusage: ownerscan serve [--addr host:port] [--db path] [--workers n]", err)
	}

	cfg, err := resolveSettings(config.ResolveOptions{
		CLIListenAddr: *addr,
		CLIDBPath:     *dbPath,
	})
	if err != nil {
		return err
	}
	retention, err := cfg.RetentionDuration()
	if err != nil {
		return err
	}
	uploadRate, err := cfg.UploadRatePerSecond()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel.Value, true, cfg.LogFile.Value)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: cfg.DBPath.Value})
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer st.Close()

	srv, err := server.New(server.Config{
		Engine:     engine,
		Processor:  &pipeline.Local{Source: buildSource(cfg, logger), Engine: engine, Logger: logger},
		Store:      st,
		Logger:     logger,
		Workers:    *workers,
		Retention:  retention,
		UploadRate: uploadRate,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting ownerscan API",
		zap.String("version", version),
		zap.String("addr", cfg.ListenAddr.Value),
		zap.String("db", cfg.DBPath.Value),
		zap.Int("providers", engine.Registry().Len()),
		zap.Duration("retention", retention),
	)
	return srv.ListenAndServe(ctx, cfg.ListenAddr.Value)
}

func runMCP(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: ownerscan mcp")
	}
	cfg, err := resolveSettings(config.ResolveOptions{})
	if err != nil {
		return err
	}
	// stdout carries the protocol; logs go to stderr only.
	logger, err := newLogger(cfg.LogLevel.Value, true, cfg.LogFile.Value)
	if err != nil {
		return err
	}
	defer logger.Sync()

	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	return mcp.Serve(mcp.ServerConfig{
		Engine:    engine,
		Processor: &pipeline.Local{Source: buildSource(cfg, logger), Engine: engine, Logger: logger},
		Version:   version,
		Logger:    logger,
	})
}

func runConfig(args []string, stdout io.Writer) error {
	if len(args) > 0 {
		return fmt.Errorf("usage: ownerscan config")
	}
	cfg, err := resolveSettings(config.ResolveOptions{})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "config file: %s\n", cfg.ConfigPath)
	for _, kv := range []struct {
		key string
		v   config.ResolvedValue
	}{
		{"providers_file", cfg.ProvidersFile},
		{"default_provider", cfg.DefaultProvider},
		{"db_path", cfg.DBPath},
		{"listen_addr", cfg.ListenAddr},
		{"retention", cfg.Retention},
		{"pdftotext", cfg.PDFToText},
		{"remote_url", cfg.RemoteURL},
		{"upload_rate", cfg.UploadRate},
		{"log_level", cfg.LogLevel},
		{"log_file", cfg.LogFile},
	} {
		if kv.v.Value == "" {
			fmt.Fprintf(stdout, "  %-17s (unset)\n", kv.key)
			continue
		}
		fmt.Fprintf(stdout, "  %-17s %s  [%s: %s]\n", kv.key, kv.v.Value, kv.v.Source, kv.v.From)
	}
	return nil
}
