package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"OpenMCP-Salesforce/pkg/logger"
)

// Config is everything both processes read at startup.
type Config struct {
	Server      ServerConfig     `json:"server" yaml:"server"`
	ToolsServer ServerConfig     `json:"tools_server" yaml:"tools_server"`
	LLM         LLMConfig        `json:"llm" yaml:"llm"`
	Remote      RemoteConfig     `json:"remote" yaml:"remote"`
	Registry    RegistryConfig   `json:"registry" yaml:"registry"`
	Salesforce  SalesforceConfig `json:"salesforce" yaml:"salesforce"`
	Logging     logger.Config    `json:"logging" yaml:"logging"`
	CORS        CORSConfig       `json:"cors" yaml:"cors"`
	Alerting    AlertingConfig   `json:"alerting" yaml:"alerting"`
	Knowledge   KnowledgeConfig  `json:"knowledge" yaml:"knowledge"`
}

// ServerConfig holds an HTTP listener address.
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider       string        `json:"provider" yaml:"provider"`
	TimeoutSeconds int           `json:"timeout_seconds" yaml:"timeout_seconds"`
	OpenAI         OpenAIConfig  `json:"openai" yaml:"openai"`
	Command        CommandConfig `json:"command" yaml:"command"`
}

// Timeout bounds a single classifier, extractor or summarizer call.
func (c LLMConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// OpenAIConfig targets any OpenAI-compatible chat completions endpoint.
// MaxRetries bounds SDK retries of rate-limited or 5xx responses.
type OpenAIConfig struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	APIKeyEnv   string  `json:"api_key_env" yaml:"api_key_env"`
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxRetries  int     `json:"max_retries" yaml:"max_retries"`
}

// CommandConfig runs a local executable that reads a prompt on stdin and
// writes the completion on stdout.
type CommandConfig struct {
	Executable string   `json:"executable" yaml:"executable"`
	Args       []string `json:"args" yaml:"args"`
	WorkingDir string   `json:"working_dir" yaml:"working_dir"`
}

// RemoteConfig points the chat backend at the tool server.
type RemoteConfig struct {
	BaseURL        string `json:"base_url" yaml:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout bounds one envelope round trip.
func (c RemoteConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// Registry sources.
const (
	RegistryBuiltin = "builtin"
	RegistryFile    = "file"
	RegistryRemote  = "remote"
)

// RegistryConfig decides where operation descriptors come from.
type RegistryConfig struct {
	Source string `json:"source" yaml:"source"`
	Path   string `json:"path" yaml:"path"`
}

// SalesforceConfig is used by the tool server only.
type SalesforceConfig struct {
	Domain         string `json:"domain" yaml:"domain"`
	Version        string `json:"version" yaml:"version"`
	AccessToken    string `json:"access_token" yaml:"access_token"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Timeout bounds one Salesforce REST request.
func (c SalesforceConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds)
}

// CORSConfig lists allowed origins. Empty means every origin.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// AlertingConfig adds an incoming webhook to the alert channels. Alerts
// are always written to the error log.
type AlertingConfig struct {
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// KnowledgeConfig points at a JSON file of schema notes for the extractor.
// An empty path disables notes.
type KnowledgeConfig struct {
	Path       string `json:"path" yaml:"path"`
	MaxResults int    `json:"max_results" yaml:"max_results"`
}

// Load reads the config file at path (YAML or JSON by extension), applies
// defaults and then environment overrides. A missing path yields a
// defaults-only config so the binary can run purely from the environment.
func Load(path string) (*Config, error) {
	loadDotEnv(path)

	var cfg Config
	baseDir := "."
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := decode(path, content, &cfg); err != nil {
				return nil, err
			}
			baseDir = filepath.Dir(path)
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyDefaults(baseDir)
	cfg.applyEnv()
	return &cfg, nil
}

func decode(path string, content []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("parse yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(content, cfg); err != nil {
			return fmt.Errorf("parse json config: %w", err)
		}
	}
	return nil
}

// loadDotEnv loads .env files next to the config and in the working
// directory. Existing variables are never overwritten.
func loadDotEnv(path string) {
	candidates := []string{".env"}
	if path != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(path), ".env"))
	}
	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8000"
	}
	if c.ToolsServer.Address == "" {
		c.ToolsServer.Address = ":8010"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Command.WorkingDir == "" {
		c.LLM.Command.WorkingDir = baseDir
	} else if !filepath.IsAbs(c.LLM.Command.WorkingDir) {
		c.LLM.Command.WorkingDir = filepath.Join(baseDir, c.LLM.Command.WorkingDir)
	}

	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = "http://localhost:8010"
	}
	if c.Remote.TimeoutSeconds <= 0 {
		c.Remote.TimeoutSeconds = 30
	}

	if c.Registry.Source == "" {
		c.Registry.Source = RegistryBuiltin
	}
	if c.Registry.Path != "" && !filepath.IsAbs(c.Registry.Path) {
		c.Registry.Path = filepath.Join(baseDir, c.Registry.Path)
	}

	if c.Knowledge.Path != "" && !filepath.IsAbs(c.Knowledge.Path) {
		c.Knowledge.Path = filepath.Join(baseDir, c.Knowledge.Path)
	}
	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}

	if c.Salesforce.Version == "" {
		c.Salesforce.Version = "v60.0"
	}
	if c.Salesforce.TimeoutSeconds <= 0 {
		c.Salesforce.TimeoutSeconds = 30
	}
}

func (c *Config) applyEnv() {
	setFromEnv(&c.LLM.OpenAI.BaseURL, "LLM_BASE_URL")
	setFromEnv(&c.LLM.OpenAI.Model, "LLM_MODEL")
	setFromEnv(&c.Remote.BaseURL, "MCP_BASE_URL")
	setFromEnv(&c.Salesforce.Domain, "SALESFORCE_DOMAIN")
	setFromEnv(&c.Salesforce.Version, "SALESFORCE_VERSION")
	setFromEnv(&c.Salesforce.AccessToken, "SALESFORCE_ACCESS_TOKEN")
	setFromEnv(&c.Alerting.WebhookURL, "OPENMCP_ALERT_WEBHOOK")
	c.Salesforce.Domain = strings.TrimRight(c.Salesforce.Domain, "/")
	c.Remote.BaseURL = strings.TrimRight(c.Remote.BaseURL, "/")
}

// ResolveAPIKey resolves the OpenAI key: inline value, then the configured
// variable, then GEMINI_API_KEY for Gemini's OpenAI-compatible endpoint.
func (c OpenAIConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(c.APIKeyEnv)); key != "" {
			return key
		}
	}
	return strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
}

// ValidateChat reports settings the chat backend cannot start without.
func (c *Config) ValidateChat() error {
	var errs []error
	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAI.ResolveAPIKey() == "" {
			errs = append(errs, fmt.Errorf("llm.openai needs api_key or $%s", c.LLM.OpenAI.APIKeyEnv))
		}
	case "command":
		if c.LLM.Command.Executable == "" {
			errs = append(errs, errors.New("llm.command.executable is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}
	switch c.Registry.Source {
	case RegistryBuiltin, RegistryRemote:
	case RegistryFile:
		if c.Registry.Path == "" {
			errs = append(errs, errors.New("registry.path is required when source is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown registry source %q", c.Registry.Source))
	}
	return errors.Join(errs...)
}

// ValidateTools reports settings the tool server cannot start without.
func (c *Config) ValidateTools() error {
	var errs []error
	if c.Salesforce.Domain == "" {
		errs = append(errs, errors.New("salesforce.domain (or $SALESFORCE_DOMAIN) is required"))
	}
	if c.Salesforce.AccessToken == "" {
		errs = append(errs, errors.New("salesforce.access_token (or $SALESFORCE_ACCESS_TOKEN) is required"))
	}
	return errors.Join(errs...)
}

func setFromEnv(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
