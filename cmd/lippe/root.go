package main

import (
	"fmt"
	"log/slog"

	"github.com/ashureev/lippe-assistant/internal/config"
	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/gemini"
	"github.com/ashureev/lippe-assistant/internal/prompt"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "0.1.0"

var (
	flagPort    string
	flagProfile string
)

var rootCmd = &cobra.Command{
	Use:   "lippe",
	Short: "Bad Lippspringe AI assistant",
	Long: `Lippe answers questions about Bad Lippspringe using a generative
language model.

Run "lippe serve" for the web form, or "lippe ask" for a single question
from the terminal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPort, "port", "", "HTTP port (overrides PORT)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "assistant profile YAML (overrides PROFILE_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(askCmd)
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if flagProfile != "" {
		cfg.ProfilePath = flagProfile
	}
	return cfg, nil
}

// answerService bundles what both commands need to run exchanges.
type answerService struct {
	profile *prompt.Profile
	client  *gemini.Client
	overlap form.Overlap
}

func newAnswerService(cfg *config.Config, logger *slog.Logger) (*answerService, error) {
	profile, err := prompt.Load(cfg.ProfilePath)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	overlap, err := form.ParseOverlap(cfg.OverlapPolicy)
	if err != nil {
		return nil, err
	}

	if cfg.Gemini.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is empty; requests will be sent without a key")
	}

	client := gemini.NewClient(gemini.Config{
		APIKey:     cfg.Gemini.APIKey,
		BaseURL:    cfg.Gemini.BaseURL,
		Model:      cfg.Gemini.Model,
		Timeout:    cfg.Gemini.Timeout,
		Generation: profile.Generation,
	}, logger)

	return &answerService{profile: profile, client: client, overlap: overlap}, nil
}
