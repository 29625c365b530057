package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/cricket/pkg/runner"
	"github.com/go-go-golems/cricket/pkg/ui"
)

func newChatCommand() *cobra.Command {
	var (
		offline     bool
		noMCP       bool
		journalPath string
		redisMirror bool
		sessionID   string
		system      string
		model       string
		title       string
		noMarkdown  bool
	)

	cmd := &cobra.Command{
		Use:   "chat [prompt...]",
		Short: "Open an interactive chat session",
		Long: `Opens a full-screen chat session. An optional prompt is submitted as
the first message; while a reply streams in, the transcript shows a
live preview that becomes a single assistant entry once the turn
resolves.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg := *settings
			if system != "" {
				cfg.SystemPrompt = system
			}
			if model != "" {
				cfg.Model = model
			}

			b := runner.NewSessionBuilder(cfg).
				WithContext(ctx).
				WithMode(runner.RunModeChat).
				WithPrompt(strings.Join(args, " ")).
				WithOffline(offline).
				WithMCPTools(!noMCP).
				WithRedisMirror(redisMirror).
				WithUIOptions(ui.ModelOptions{Title: title, Model: cfg.Model, Markdown: !noMarkdown})
			if journalPath != "" {
				b = b.WithJournal(journalPath)
			}
			if sessionID != "" {
				b = b.WithSessionID(sessionID)
			}

			cs, err := b.Build()
			if err != nil {
				return err
			}
			return cs.Run()
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use the local echo backend instead of OpenAI")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Skip loading tools from the MCP server")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Journal every stream frame into this sqlite file")
	cmd.Flags().BoolVar(&redisMirror, "redis-mirror", false, "Mirror the session stream to Redis Streams")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session identity (default: a random UUID)")
	cmd.Flags().StringVar(&system, "system", "", "Override the system prompt")
	cmd.Flags().StringVar(&model, "model", "", "Override the model")
	cmd.Flags().StringVar(&title, "title", "cricket", "Chat header title")
	cmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "Render assistant replies as plain text")

	return cmd
}
