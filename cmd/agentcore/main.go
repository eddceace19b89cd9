// Command agentcore is a thin wiring binary demonstrating the tool-calling
// core end to end: it loads configuration, builds a tool registry and
// confirmation policy, picks a provider-backed content generator, and runs
// one orchestrator turn over a single user message read from argv.
package main

import (
	"context"
	"fmt"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaisdk "github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fletchway/agentcore/internal/config"
	"github.com/fletchway/agentcore/internal/confirm"
	"github.com/fletchway/agentcore/internal/model"
	"github.com/fletchway/agentcore/internal/orchestrator"
	"github.com/fletchway/agentcore/internal/providers/anthropic"
	"github.com/fletchway/agentcore/internal/providers/openai"
	"github.com/fletchway/agentcore/internal/schema"
	"github.com/fletchway/agentcore/internal/telemetry"
	"github.com/fletchway/agentcore/internal/tools"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "agentcore [message]",
		Short: "Run one agentic tool-calling turn against a configured provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "agentcore.yaml", "path to the YAML run configuration")
	return cmd
}

func run(ctx context.Context, message, configPath string) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	tlog := telemetry.NewZapLogger(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	credential, err := cfg.Credential()
	if err != nil {
		return fmt.Errorf("resolve credential: %w", err)
	}

	registry := tools.NewRegistry(tools.FilterPolicy{Allow: cfg.ToolAllowList, Deny: cfg.ToolDenyList})
	declarations := schema.FromRegistry(registry)
	if err := schema.ValidateAll(declarations); err != nil {
		return fmt.Errorf("validate tool declarations: %w", err)
	}

	gen, err := buildGenerator(cfg, credential, declarations)
	if err != nil {
		return fmt.Errorf("build content generator: %w", err)
	}

	confirmPolicy := confirm.Policy{
		Store: confirm.NewMemoryStore(),
		Ask: func(ctx context.Context, callID string, details tools.ConfirmationDetails) (confirm.Outcome, error) {
			// With no interactive terminal UI wired into this demo binary, a
			// non-auto-confirm run conservatively denies every request.
			return confirm.OutcomeCancel, nil
		},
	}

	orch := orchestrator.New(gen, registry, confirmPolicy, orchestrator.WithLogger(tlog))
	events := orch.Run(ctx, model.History{model.TextMessage(model.RoleUser, message)}, orchestrator.Config{
		MaxIterations: cfg.MaxAgentIterations,
		AutoConfirm:   cfg.AutoConfirm,
	})

	for ev := range events {
		switch ev.Kind {
		case orchestrator.EventContent:
			fmt.Println(ev.Text)
		case orchestrator.EventToolCallRequest:
			tlog.Info(ctx, "tool call requested", "name", ev.Request.Name, "call_id", ev.Request.CallID)
		case orchestrator.EventToolCallResponse:
			tlog.Info(ctx, "tool call completed", "name", ev.Response.Request.Name, "success", ev.Response.Result.Success)
		case orchestrator.EventFinished:
			tlog.Info(ctx, "run finished", "reason", ev.Reason)
		case orchestrator.EventError:
			return ev.Err
		}
	}
	return nil
}

func buildGenerator(cfg config.Config, credential string, declarations []schema.Declaration) (orchestrator.ContentGenerator, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		client := anthropicsdk.NewClient(anthropicoption.WithAPIKey(credential))
		return anthropic.New(&client.Messages, declarations, anthropic.Options{
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		})
	case config.ProviderOpenAI:
		client := openaisdk.NewClient(openaioption.WithAPIKey(credential))
		return openai.New(&client.Chat.Completions, declarations, openai.Options{
			Model:     "gpt-4o",
			MaxTokens: 4096,
		})
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
