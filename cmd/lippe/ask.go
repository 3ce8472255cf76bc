package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ashureev/lippe-assistant/internal/form"
	"github.com/ashureev/lippe-assistant/internal/render"
	"github.com/spf13/cobra"
)

var askRaw bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question and print the answer",
	Long: `Ask one question and print the answer.

The answer is printed as plain text; use --raw to print the markup the
service returned.

Examples:
  lippe ask "Was kann man im Kurpark machen?"
  lippe ask --raw "Opening hours of the Westfalen-Therme"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askRaw, "raw", false, "print the answer markup unmodified")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the answer.
	level := cfg.LogLevel
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	svc, err := newAnswerService(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := form.NewController(svc.client, svc.profile, svc.profile.Greeting, form.WithLogger(logger))
	task, err := c.Submit(ctx, strings.Join(args, " "))
	var verr *form.ValidationError
	if errors.As(err, &verr) {
		return errors.New(verr.Message)
	}
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		task.Cancel()
	}()

	outcome, err := task.Wait(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	answer := string(outcome.Answer)
	if !askRaw {
		answer = html.UnescapeString(render.NewPolicy(true).Text(outcome.Answer))
	}

	if outcome.Kind == form.OutcomeFailed {
		return errors.New(c.Snapshot().Error)
	}
	_, err = fmt.Fprintln(out, strings.TrimSpace(answer))
	return err
}
