package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"OpenMCP-Salesforce/internal/config"
	"OpenMCP-Salesforce/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "openmcpd",
	Short: "Natural-language front end for Salesforce",
	Long: `openmcpd answers free-text questions about a Salesforce org.

"serve" runs the chat backend that classifies prompts and summarizes results.
"tools" runs the JSON-RPC and MCP tool server that talks to Salesforce.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (YAML or JSON); defaults to $OPENMCP_CONFIG or configs/openmcp.yaml")
	rootCmd.AddCommand(serveCmd, toolsCmd)
}

func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv("OPENMCP_CONFIG"); path != "" {
		return path
	}
	return filepath.Join("configs", "openmcp.yaml")
}

// loadConfig reads the config and initialises logging from it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}
	return cfg, nil
}
