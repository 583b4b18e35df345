package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  address: ":9000"
llm:
  provider: command
  command:
    executable: ./fake-llm
    working_dir: scripts
registry:
  source: file
  path: operations.yaml
knowledge:
  path: notes.json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, ":8010", cfg.ToolsServer.Address)
	assert.Equal(t, filepath.Join(dir, "scripts"), cfg.LLM.Command.WorkingDir)
	assert.Equal(t, filepath.Join(dir, "operations.yaml"), cfg.Registry.Path)
	assert.Equal(t, filepath.Join(dir, "notes.json"), cfg.Knowledge.Path)
	assert.Equal(t, 3, cfg.Knowledge.MaxResults)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout())
	assert.Equal(t, "v60.0", cfg.Salesforce.Version)
	assert.NoError(t, cfg.ValidateChat())
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "openmcp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"remote":{"base_url":"http://tools:8010/","timeout_seconds":5},"llm":{"openai":{"temperature":0.3,"max_retries":2}}}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://tools:8010", cfg.Remote.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout())
	assert.InDelta(t, 0.3, cfg.LLM.OpenAI.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.LLM.OpenAI.MaxRetries)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, RegistryBuiltin, cfg.Registry.Source)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SALESFORCE_DOMAIN", "https://example.my.salesforce.com/")
	t.Setenv("SALESFORCE_ACCESS_TOKEN", "token")
	t.Setenv("SALESFORCE_VERSION", "v59.0")
	t.Setenv("MCP_BASE_URL", "http://remote:8010")
	t.Setenv("OPENMCP_ALERT_WEBHOOK", "https://hooks.example.com/T000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://example.my.salesforce.com", cfg.Salesforce.Domain)
	assert.Equal(t, "v59.0", cfg.Salesforce.Version)
	assert.Equal(t, "http://remote:8010", cfg.Remote.BaseURL)
	assert.Equal(t, "https://hooks.example.com/T000", cfg.Alerting.WebhookURL)
	assert.NoError(t, cfg.ValidateTools())
}

func TestDotEnvNextToConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENMCP_TEST_ONLY_KEY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("OPENMCP_TEST_ONLY_KEY") })

	path := filepath.Join(dir, "openmcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  openai:\n    api_key_env: OPENMCP_TEST_ONLY_KEY\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.LLM.OpenAI.ResolveAPIKey())
}

func TestValidate(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("SALESFORCE_DOMAIN", "")
	t.Setenv("SALESFORCE_ACCESS_TOKEN", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Error(t, cfg.ValidateChat())
	assert.Error(t, cfg.ValidateTools())

	cfg.LLM.OpenAI.APIKey = "inline"
	assert.NoError(t, cfg.ValidateChat())

	cfg.Registry.Source = "etcd"
	assert.Error(t, cfg.ValidateChat())
}
