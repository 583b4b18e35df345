package main

import (
	"context"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"OpenMCP-Salesforce/internal/config"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/internal/salesforce"
	"OpenMCP-Salesforce/internal/toolserver"
	"OpenMCP-Salesforce/pkg/logger"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Run the Salesforce tool server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := cfg.ValidateTools(); err != nil {
			return err
		}

		srv, err := buildToolServer(cfg)
		if err != nil {
			return err
		}

		if stdio, _ := cmd.Flags().GetBool("stdio"); stdio {
			// stdout carries the MCP stream.
			if err := logger.Init(stdioLogging(cfg.Logging)); err != nil {
				return err
			}
			return server.ServeStdio(srv.MCP())
		}
		if err := srv.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	toolsCmd.Flags().Bool("stdio", false, "serve MCP over stdin/stdout instead of HTTP")
}

func buildToolServer(cfg *config.Config) (*toolserver.Server, error) {
	sf, err := salesforce.NewClient(salesforce.Config{
		Domain:      cfg.Salesforce.Domain,
		Version:     cfg.Salesforce.Version,
		AccessToken: cfg.Salesforce.AccessToken,
		Timeout:     cfg.Salesforce.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	d, err := toolserver.NewDispatcher(registry.Builtin(), sf)
	if err != nil {
		return nil, err
	}
	return toolserver.NewServer(cfg.ToolsServer.Address, d), nil
}

func stdioLogging(cfg logger.Config) logger.Config {
	outputs := make([]string, 0, len(cfg.OutputPaths))
	for _, out := range cfg.OutputPaths {
		if trimmed := strings.TrimSpace(out); trimmed == "" || strings.EqualFold(trimmed, "stdout") {
			out = "stderr"
		}
		outputs = append(outputs, out)
	}
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	cfg.OutputPaths = outputs
	return cfg
}
