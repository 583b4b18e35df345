package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenMCP-Salesforce/internal/config"
	"OpenMCP-Salesforce/internal/llm/command"
	"OpenMCP-Salesforce/internal/llm/openai"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/pkg/logger"
)

type staticLister []registry.Descriptor

func (l staticLister) ListTools(context.Context) ([]registry.Descriptor, error) {
	return l, nil
}

func TestConfigPathPrecedence(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "")

	t.Setenv("OPENMCP_CONFIG", "")
	assert.Equal(t, filepath.Join("configs", "openmcp.yaml"), configPath(cmd))

	t.Setenv("OPENMCP_CONFIG", "/etc/openmcp.yaml")
	assert.Equal(t, "/etc/openmcp.yaml", configPath(cmd))

	require.NoError(t, cmd.Flags().Set("config", "local.json"))
	assert.Equal(t, "local.json", configPath(cmd))
}

func TestCreateLLMClient(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "sk-test"}}}
	client, err := createLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &openai.Client{}, client)

	cfg = &config.Config{LLM: config.LLMConfig{Provider: "command", Command: config.CommandConfig{Executable: "/bin/cat"}}}
	client, err = createLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &command.Client{}, client)

	_, err = createLLMClient(&config.Config{LLM: config.LLMConfig{Provider: "carrier-pigeon"}})
	require.Error(t, err)
}

func TestBuildAgent(t *testing.T) {
	cfg := &config.Config{
		LLM:      config.LLMConfig{Provider: "openai", OpenAI: config.OpenAIConfig{APIKey: "sk-test"}},
		Remote:   config.RemoteConfig{BaseURL: "http://localhost:8010"},
		Registry: config.RegistryConfig{Source: config.RegistryBuiltin},
		Alerting: config.AlertingConfig{WebhookURL: "https://hooks.example.com/T000"},
	}
	ag, err := buildAgent(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, ag.Operations(), 3)

	notes := filepath.Join(t.TempDir(), "notes.json")
	require.NoError(t, os.WriteFile(notes, []byte(`[{"title":"Deals","content":"Opportunity","keywords":["deal"]}]`), 0o600))
	cfg.Knowledge = config.KnowledgeConfig{Path: notes, MaxResults: 2}
	_, err = buildAgent(context.Background(), cfg)
	require.NoError(t, err)

	cfg.Knowledge.Path = filepath.Join(t.TempDir(), "missing.json")
	_, err = buildAgent(context.Background(), cfg)
	require.Error(t, err)
}

func TestLoadRegistry(t *testing.T) {
	ctx := context.Background()

	reg, err := loadRegistry(ctx, &config.Config{Registry: config.RegistryConfig{Source: config.RegistryBuiltin}}, nil)
	require.NoError(t, err)
	assert.Len(t, reg.List(), 3)

	lister := staticLister(registry.BuiltinDescriptors()[:1])
	reg, err = loadRegistry(ctx, &config.Config{Registry: config.RegistryConfig{Source: config.RegistryRemote}}, lister)
	require.NoError(t, err)
	assert.Equal(t, []string{registry.OpListObjects}, reg.Names())

	path := filepath.Join(t.TempDir(), "ops.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- name: list_salesforce_objects
  description: Lists objects
  parameters:
    type: object
    properties: {}
`), 0o644))
	reg, err = loadRegistry(ctx, &config.Config{Registry: config.RegistryConfig{Source: config.RegistryFile, Path: path}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{registry.OpListObjects}, reg.Names())

	_, err = loadRegistry(ctx, &config.Config{Registry: config.RegistryConfig{Source: "ldap"}}, nil)
	require.Error(t, err)
}

func TestBuildToolServer(t *testing.T) {
	cfg := &config.Config{
		ToolsServer: config.ServerConfig{Address: ":0"},
		Salesforce:  config.SalesforceConfig{Domain: "https://example.my.salesforce.com", AccessToken: "tok"},
	}
	srv, err := buildToolServer(cfg)
	require.NoError(t, err)
	assert.Len(t, srv.MCP().ListTools(), 3)

	_, err = buildToolServer(&config.Config{})
	require.Error(t, err)
}

func TestStdioLoggingAvoidsStdout(t *testing.T) {
	cfg := stdioLogging(logger.Config{OutputPaths: []string{"stdout", "/var/log/openmcp.log"}})
	assert.Equal(t, []string{"stderr", "/var/log/openmcp.log"}, cfg.OutputPaths)

	cfg = stdioLogging(logger.Config{})
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}
