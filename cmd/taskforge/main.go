package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"taskforge/internal/artifact"
	"taskforge/internal/codemap"
	"taskforge/internal/config"
	"taskforge/internal/curator"
	"taskforge/internal/decompose"
	"taskforge/internal/dispatch"
	"taskforge/internal/gateway"
	"taskforge/internal/intent"
	"taskforge/internal/logging"
	"taskforge/internal/security"
)

var (
	// Global flags
	workspace  string
	verbose    bool
	apiKey     string
	codemapCmd string
	timeout    time.Duration
)

// app holds the composed singletons. Everything is constructed once here and
// handed to commands as explicit collaborators.
type app struct {
	cfg        *config.Config
	validator  *security.Validator
	gw         *gateway.Gateway
	maps       *codemap.Provider
	parser     *artifact.Parser
	recognizer *intent.Recognizer
	dispatcher *dispatch.Dispatcher
	decomposer *decompose.Engine
	pipeline   *curator.Pipeline
}

var rootCmd = &cobra.Command{
	Use:   "taskforge",
	Short: "taskforge - AI-native task orchestration",
	Long: `taskforge turns natural-language development requests into structured work:
it recognizes intent, decomposes tasks into dependency-ordered atomic units,
and curates token-budgeted context packages for code-generation agents.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspace)
		if err != nil {
			return err
		}
		opts := logging.Options{
			DebugMode:  verbose || cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
		}
		if verbose {
			opts.Level = "debug"
		}
		return logging.Initialize(workspace, opts)
	},
}

func init() {
	wd, _ := os.Getwd()
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", wd, "workspace directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "LLM API key (or LLM_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&codemapCmd, "codemap-cmd", "", "code-map generator command line")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall command timeout")
}

// buildApp composes the process-wide singletons from configuration.
func buildApp() (*app, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}

	key := apiKey
	if key == "" {
		key = os.Getenv("LLM_API_KEY")
	}
	if key == "" {
		key = cfg.LLM.APIKey
	}

	validator, err := security.NewValidator(cfg.Output.AllowedProjectRoot)
	if err != nil {
		return nil, err
	}

	client := gateway.NewHTTPClient(gateway.HTTPClientConfig{
		APIKey:  key,
		BaseURL: cfg.LLM.BaseURL,
	})
	gw := gateway.New(cfg.LLM, client)

	var gen codemap.Generator = &codemap.CommandGenerator{}
	if codemapCmd != "" {
		gen = &codemap.CommandGenerator{Command: strings.Fields(codemapCmd)}
	}
	maps := codemap.NewProvider(filepath.Join(cfg.Output.Dir, "code-map-generator"), gen)

	a := &app{
		cfg:        cfg,
		validator:  validator,
		gw:         gw,
		maps:       maps,
		parser:     artifact.NewParser(cfg.Output.Dir, validator),
		recognizer: intent.NewRecognizer(intent.NewEngine(), intent.NewFallback(gw)),
		decomposer: decompose.NewEngine(gw, cfg.Decompose, nil),
		pipeline:   curator.NewPipeline(gw, maps, validator, cfg.Curator, cfg.Output),
	}
	a.dispatcher = newDispatcher(a)
	return a, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
