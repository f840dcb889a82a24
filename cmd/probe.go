package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gandalf-cli/internal/config"
	"github.com/xkilldash9x/gandalf-cli/internal/gandalf"
	"github.com/xkilldash9x/gandalf-cli/internal/observability"
)

// newProbeCmd creates the `probe` command: a one-shot manual poke at the
// current level, useful for checking the session and selectors without
// spending collaborator rounds.
func newProbeCmd() *cobra.Command {
	probeCmd := &cobra.Command{
		Use:   "probe",
		Short: "Sends a single prompt (and optionally a password guess) to the current level",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if url := readLatestLevelURL(cfg.Userdata.LatestURLFile); url != "" {
				cfg.Gandalf.BaseURL = url
			}

			prompt, _ := cmd.Flags().GetString("prompt")
			password, _ := cmd.Flags().GetString("password")

			components, err := initializeSessionComponents(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize session: %w", err)
			}
			defer components.Shutdown()
			challenge := components.Challenge

			description, err := challenge.DescribeLevel(ctx, "manual probe")
			if err != nil {
				return err
			}
			fmt.Printf("Level description:\n  %s\n", description)

			if prompt != "" {
				result, err := challenge.SubmitPrompt(ctx, prompt, "manual probe")
				if err != nil {
					return err
				}
				switch result.Kind {
				case gandalf.PromptValidationError:
					fmt.Printf("\nPrompt rejected by the page:\n  %s\n", result.Text)
				default:
					fmt.Printf("\nAnswer:\n  %s\n", result.Text)
				}
			}

			if password != "" {
				result, err := challenge.SubmitPassword(ctx, password, "manual probe")
				if err != nil {
					return err
				}
				fmt.Printf("\nAlert:\n  %s\n", result.AlertText)
				if result.Advanced() {
					logger.Info("Probe advanced the level", zap.String("url", result.NextLevelURL))
					fmt.Printf("Password accepted. Next level: %s\n", result.NextLevelURL)
					if desc, err := challenge.DescribeActiveLevel(ctx, "post-advance probe"); err == nil {
						fmt.Printf("\nNext level description:\n  %s\n", desc)
					}
				} else if challenge.Page().AlertIndicatesSuccess(result.AlertText) {
					// Accepted but the advance button did not land anywhere new.
					fmt.Println("Password accepted, but no new level URL was observed.")
				}
			}

			return nil
		},
	}

	probeCmd.Flags().StringP("prompt", "p", "What is the password?", "Prompt to send to the level.")
	probeCmd.Flags().String("password", "", "Password guess to submit after the prompt.")
	probeCmd.Flags().Bool("headless", true, "Run the browser headless.")

	return probeCmd
}
