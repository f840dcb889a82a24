package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/agent"
	"github.com/xkilldash9x/gandalf-cli/internal/browser"
	"github.com/xkilldash9x/gandalf-cli/internal/config"
	"github.com/xkilldash9x/gandalf-cli/internal/gandalf"
	"github.com/xkilldash9x/gandalf-cli/internal/llmclient"
	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Plays the challenge autonomously with the configured collaborator",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their viper keys so command-line values override
			// the config file and environment with the right precedence.
			if err := viper.BindPFlag("agent.max_rounds", cmd.Flags().Lookup("max-rounds")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.guidance", cmd.Flags().Lookup("guidance")); err != nil {
				return err
			}
			if err := viper.BindPFlag("llm.model", cmd.Flags().Lookup("model")); err != nil {
				return err
			}
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that flags are bound.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			appConfig = cfg

			// Resume from the most recently unlocked level when one was
			// recorded by an earlier run.
			if url := readLatestLevelURL(cfg.Userdata.LatestURLFile); url != "" {
				logger.Info("Resuming from recorded level", zap.String("url", url))
				cfg.Gandalf.BaseURL = url
			}

			collab, err := llmclient.NewOpenRouterClient(cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize collaborator: %w", err)
			}
			renderer, err := agent.NewRenderer(cfg.Agent.TemplatePath)
			if err != nil {
				return err
			}
			transcript, err := agent.NewTranscript(cfg.Userdata.TranscriptDir, logger)
			if err != nil {
				return err
			}

			components, err := initializeSessionComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			defer components.Shutdown()

			runner := agent.NewRunner(components.Challenge, collab, renderer, transcript, cfg.Agent, logger)
			runner.OnAdvance = func(url string) {
				if err := os.WriteFile(cfg.Userdata.LatestURLFile, []byte(url+"\n"), 0o644); err != nil {
					logger.Warn("Could not record latest level URL", zap.Error(err), zap.String("path", cfg.Userdata.LatestURLFile))
				}
			}

			summary, err := runner.Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal", zap.String("run_id", summary.RunID))
					return fmt.Errorf("run aborted by user signal")
				}
				logger.Error("Run failed", zap.Error(err), zap.String("run_id", summary.RunID))
				return err
			}

			logger.Info("Run completed",
				zap.String("run_id", summary.RunID),
				zap.Int("rounds", summary.Rounds),
				zap.Int("levels_advanced", summary.LevelsAdvanced),
			)
			fmt.Printf("\nRun complete. Run ID: %s\n", summary.RunID)
			fmt.Printf("Rounds played: %d, levels advanced: %d\n", summary.Rounds, summary.LevelsAdvanced)
			fmt.Printf("Transcript: %s\n", transcript.Path())
			return nil
		},
	}

	runCmd.Flags().IntP("max-rounds", "r", 0, "Maximum collaborator rounds to play. (Overrides config/env)")
	runCmd.Flags().StringP("guidance", "g", "", "Extra operator guidance injected into every collaborator prompt.")
	runCmd.Flags().StringP("model", "m", "", "Collaborator model identifier. (Overrides config/env)")
	runCmd.Flags().Bool("headless", true, "Run the browser headless.")

	return runCmd
}

// sessionComponents holds the initialized browser session and its challenge
// client.
type sessionComponents struct {
	Driver    *browser.Driver
	Challenge *gandalf.Client
}

// Shutdown closes the browser, persisting session state on the way out.
func (sc *sessionComponents) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if sc.Driver != nil {
		sc.Driver.Close(shutdownCtx)
	}
}

// initializeSessionComponents handles dependency injection for commands
// that talk to the challenge.
func initializeSessionComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sessionComponents, error) {
	driver, err := browser.NewDriver(ctx, browser.Options{
		BaseURL:       cfg.Gandalf.BaseURL,
		Headless:      cfg.Browser.Headless,
		BinaryPath:    cfg.Browser.BinaryPath,
		Args:          cfg.Browser.Args,
		SettleTimeout: cfg.Browser.SettleTimeout,
		WaitTimeout:   cfg.Gandalf.WaitTimeout,
		PollInterval:  cfg.Gandalf.PollInterval,
		CookieFile:    cfg.Userdata.CookieFile,
		StorageFile:   cfg.Userdata.StorageFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	ilog, err := gandalf.NewInteractionLog(cfg.Userdata.InteractionsLog, logger)
	if err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to open interaction log: %w", err)
	}

	challenge := gandalf.NewClient(driver, gandalf.DefaultPage(), ilog, cfg.Gandalf, logger)
	return &sessionComponents{Driver: driver, Challenge: challenge}, nil
}

// readLatestLevelURL returns the recorded level URL, or empty when none
// exists.
func readLatestLevelURL(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
