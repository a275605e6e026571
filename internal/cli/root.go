// Package cli implements the gamesmith CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Snapphil/gamesmith/internal/config"
	"github.com/Snapphil/gamesmith/internal/llm"
	"github.com/Snapphil/gamesmith/internal/pipeline"
	"github.com/Snapphil/gamesmith/internal/store"
)

var (
	configPath  string
	dbFlag      string
	logLevel    string
	logFormat   string
	promptsFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "gamesmith",
	Short: "Staged LLM generation of mobile HTML5 mini-games",
	Long: "gamesmith drives an LLM through a fixed improvement pipeline to produce\n" +
		"a self-contained mobile HTML5 mini-game, persisting progress so an\n" +
		"interrupted generation can resume where it left off.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config path (default: ~/.gamesmith/config.json)")
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "Database path (default from config)")
	RootCmd.PersistentFlags().String("model", "", "Model override")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug|info|warn|error")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text|json")
	RootCmd.PersistentFlags().StringVar(&promptsFlag, "prompts", "", "YAML stage prompt overrides")
}

func loadConfig() (*config.Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(logLevel) != "" {
		cfg.LogLevel = logLevel
	}
	if strings.TrimSpace(logFormat) != "" {
		cfg.LogFormat = logFormat
	}
	if strings.TrimSpace(dbFlag) != "" {
		cfg.DBPath = dbFlag
	}
	if strings.TrimSpace(promptsFlag) != "" {
		cfg.PromptsPath = promptsFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.EffectiveLogLevel() {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.EffectiveLogFormat() == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.EffectiveDBPath())
}

// buildOrchestrator wires config, store, prompts and the streaming client
// into a ready orchestrator.
func buildOrchestrator(cmd *cobra.Command, cfg *config.Config, st *store.Store, log *slog.Logger) (*pipeline.Orchestrator, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	client, err := llm.New(llm.Options{
		Logger:       log,
		BaseURL:      cfg.EffectiveBaseURL(),
		APIKey:       key,
		StallTimeout: cfg.EffectiveStallTimeout(),
		MaxAttempts:  cfg.EffectiveMaxAttempts(),
	})
	if err != nil {
		return nil, err
	}

	prompts := pipeline.DefaultPrompts()
	if path := strings.TrimSpace(cfg.PromptsPath); path != "" {
		prompts, err = pipeline.LoadPrompts(path)
		if err != nil {
			return nil, err
		}
	}

	model := cfg.EffectiveModel()
	if flag, _ := cmd.Flags().GetString("model"); strings.TrimSpace(flag) != "" {
		model = strings.TrimSpace(flag)
	}

	return pipeline.New(pipeline.Options{
		Log:        log,
		Store:      st,
		Transport:  client,
		Model:      model,
		Prompts:    prompts,
		StageDelay: cfg.EffectiveStageDelay(),
	})
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
