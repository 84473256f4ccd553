// Package mcp provides a Model Context Protocol server for ownerscan.
//
// It exposes the provider catalog and owner extraction as MCP tools, and the
// provider catalog as an MCP resource. Served over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/hurttlocker/ownerscan/internal/extract"
	"github.com/hurttlocker/ownerscan/internal/pipeline"
	"github.com/hurttlocker/ownerscan/internal/provider"
	"github.com/hurttlocker/ownerscan/internal/tabular"
	"github.com/hurttlocker/ownerscan/internal/textsource"
)

// maxFileBytes caps documents read by ownerscan_extract_file.
const maxFileBytes = 64 << 20

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Engine    *extract.Engine
	Processor pipeline.Processor // optional; enables ownerscan_extract_file
	Version   string             // version string for MCP server info
	Logger    *zap.Logger
}

// NewServer creates a configured MCP server with all ownerscan tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"ownerscan",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerProvidersTool(s, cfg.Engine.Registry())
	registerExtractTool(s, cfg.Engine)
	if cfg.Processor != nil {
		registerExtractFileTool(s, cfg.Engine.Registry(), cfg.Processor, cfg.Logger)
	}

	registerProvidersResource(s, cfg.Engine.Registry())

	return s
}

// Serve runs the server on stdio until the client disconnects.
func Serve(cfg ServerConfig) error {
	return server.ServeStdio(NewServer(cfg))
}

// --- Tools ---

func registerProvidersTool(s *server.MCPServer, reg *provider.Registry) {
	tool := mcp.NewTool("ownerscan_providers",
		mcp.WithDescription("List the real-estate providers whose listing layouts ownerscan can parse. The first provider is the default."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		data, _ := json.MarshalIndent(providerCatalog(reg), "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerExtractTool(s *server.MCPServer, engine *extract.Engine) {
	tool := mcp.NewTool("ownerscan_extract",
		mcp.WithDescription("Extract property owners (name and phone) from listing text. Blocks are separated by blank lines; blocks without an owner name are skipped."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Plain listing text, as extracted from the PDF"),
		),
		mcp.WithString("provider",
			mcp.Description("Provider id (see ownerscan_providers). Empty = default provider."),
		),
		mcp.WithString("format",
			mcp.Description("Output format: json or csv (default: json)"),
			mcp.Enum("json", "csv"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError("text is required"), nil
		}
		providerID, err := resolveProvider(engine.Registry(), req.GetString("provider", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		res, err := engine.ExtractDetailed(textsource.Normalize(text), providerID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extract error: %v", err)), nil
		}
		return renderResult(res, req.GetString("format", "json"))
	})
}

func registerExtractFileTool(s *server.MCPServer, reg *provider.Registry, proc pipeline.Processor, logger *zap.Logger) {
	tool := mcp.NewTool("ownerscan_extract_file",
		mcp.WithDescription("Extract property owners from a local listing file (PDF or text). PDFs need a text layer."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path to the listing file"),
		),
		mcp.WithString("provider",
			mcp.Description("Provider id (see ownerscan_providers). Empty = default provider."),
		),
		mcp.WithString("format",
			mcp.Description("Output format: json or csv (default: json)"),
			mcp.Enum("json", "csv"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil || strings.TrimSpace(path) == "" {
			return mcp.NewToolResultError("path is required"), nil
		}
		providerID, err := resolveProvider(reg, req.GetString("provider", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}
		if info.Size() > maxFileBytes {
			return mcp.NewToolResultError(fmt.Sprintf("%s is too large (%d bytes)", path, info.Size())), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("cannot read %s: %v", path, err)), nil
		}

		doc := textsource.Document{Name: filepath.Base(path), Data: data}
		records, err := proc.Process(ctx, doc, providerID)
		if err != nil {
			logger.Debug("mcp extract failed", zap.String("file", path), zap.Error(err))
			if errors.Is(err, extract.ErrEmptyResult) {
				return mcp.NewToolResultError(pipeline.EmptyResultMessage), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", pipeline.UserMessage(err), err)), nil
		}
		return renderResult(&extract.Result{Provider: providerID, Records: records}, req.GetString("format", "json"))
	})
}

func renderResult(res *extract.Result, format string) (*mcp.CallToolResult, error) {
	if len(res.Records) == 0 {
		return mcp.NewToolResultError(pipeline.EmptyResultMessage), nil
	}
	switch format {
	case "", "json":
		data, _ := json.MarshalIndent(res, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	case "csv":
		return mcp.NewToolResultText(tabular.FormatCSV(res.Records)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown format %q (want json or csv)", format)), nil
	}
}

func resolveProvider(reg *provider.Registry, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		def, ok := reg.Default()
		if !ok {
			return "", errors.New("no providers configured")
		}
		return def.ID, nil
	}
	if _, err := reg.Lookup(id); err != nil {
		return "", err
	}
	return id, nil
}
