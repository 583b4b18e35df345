package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"OpenMCP-Salesforce/internal/agent"
	"OpenMCP-Salesforce/internal/ai"
	"OpenMCP-Salesforce/internal/api"
	"OpenMCP-Salesforce/internal/config"
	"OpenMCP-Salesforce/internal/knowledge"
	"OpenMCP-Salesforce/internal/llm"
	"OpenMCP-Salesforce/internal/llm/command"
	"OpenMCP-Salesforce/internal/llm/openai"
	"OpenMCP-Salesforce/internal/observability/alerting"
	"OpenMCP-Salesforce/internal/registry"
	"OpenMCP-Salesforce/internal/rpc"
	"OpenMCP-Salesforce/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat backend",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := cfg.ValidateChat(); err != nil {
			return err
		}

		ctx := cmd.Context()
		ag, err := buildAgent(ctx, cfg)
		if err != nil {
			return err
		}

		server := api.NewServer(cfg.Server.Address, ag, api.WithAllowedOrigins(cfg.CORS.AllowedOrigins))
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func buildAgent(ctx context.Context, cfg *config.Config) (*agent.Agent, error) {
	llmClient, err := createLLMClient(cfg)
	if err != nil {
		return nil, err
	}

	caller, err := rpc.NewClient(cfg.Remote.BaseURL, rpc.WithTimeout(cfg.Remote.Timeout()))
	if err != nil {
		return nil, err
	}

	reg, err := loadRegistry(ctx, cfg, caller)
	if err != nil {
		return nil, err
	}
	logger.Named("serve").Info("operation registry loaded", "source", cfg.Registry.Source, "operations", reg.Names())

	aiOpts := []ai.Option{ai.WithTimeout(cfg.LLM.Timeout())}
	extractorOpts := append([]ai.Option{}, aiOpts...)
	if cfg.Knowledge.Path != "" {
		notes, err := knowledge.LoadStaticProvider(cfg.Knowledge.Path, cfg.Knowledge.MaxResults)
		if err != nil {
			return nil, err
		}
		extractorOpts = append(extractorOpts, ai.WithKnowledge(notes))
	}

	return agent.New(
		reg,
		ai.NewClassifier(llmClient, aiOpts...),
		ai.NewExtractor(llmClient, extractorOpts...),
		ai.NewSummarizer(llmClient, aiOpts...),
		caller,
		agent.WithRemoteTimeout(cfg.Remote.Timeout()),
		agent.WithAlerts(newAlerts(cfg.Alerting)),
	)
}

func newAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	return alerting.NewFanout(notifiers...)
}

func loadRegistry(ctx context.Context, cfg *config.Config, lister registry.Lister) (*registry.Registry, error) {
	switch cfg.Registry.Source {
	case "", config.RegistryBuiltin:
		return registry.Builtin(), nil
	case config.RegistryFile:
		return registry.LoadFile(cfg.Registry.Path)
	case config.RegistryRemote:
		return registry.FromRemote(ctx, lister)
	default:
		return nil, fmt.Errorf("unknown registry source %q", cfg.Registry.Source)
	}
}

func createLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "", "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.OpenAI.ResolveAPIKey(),
			BaseURL:     cfg.LLM.OpenAI.BaseURL,
			Model:       cfg.LLM.OpenAI.Model,
			Timeout:     cfg.LLM.Timeout(),
			Temperature: cfg.LLM.OpenAI.Temperature,
			MaxRetries:  cfg.LLM.OpenAI.MaxRetries,
		})
	case "command":
		return command.NewClient(cfg.LLM.Command.Executable, cfg.LLM.Command.Args, cfg.LLM.Command.WorkingDir)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}
