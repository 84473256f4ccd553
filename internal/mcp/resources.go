package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hurttlocker/ownerscan/internal/provider"
)

type providerEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type providerList struct {
	Default   string          `json:"default"`
	Providers []providerEntry `json:"providers"`
}

func providerCatalog(reg *provider.Registry) providerList {
	out := providerList{Providers: make([]providerEntry, 0, reg.Len())}
	if def, ok := reg.Default(); ok {
		out.Default = def.ID
	}
	for _, p := range reg.All() {
		out.Providers = append(out.Providers, providerEntry{ID: p.ID, Name: p.Name})
	}
	return out
}

func registerProvidersResource(s *server.MCPServer, reg *provider.Registry) {
	resource := mcp.NewResource(
		"ownerscan://providers",
		"Providers",
		mcp.WithResourceDescription("Provider catalog: ids and display names, default first."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, _ := json.MarshalIndent(providerCatalog(reg), "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
