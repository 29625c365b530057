package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cricket/pkg/attach"
	"github.com/go-go-golems/cricket/pkg/runner"
	"github.com/go-go-golems/cricket/pkg/session"
)

func newAskCommand() *cobra.Command {
	var (
		offline      bool
		noMCP        bool
		journalPath  string
		redisMirror  bool
		sessionID    string
		system       string
		model        string
		interactive  bool
		copyReply    bool
		attachPaths  []string
		includeExts  []string
		attachTokens int
	)

	cmd := &cobra.Command{
		Use:   "ask <prompt>...",
		Short: "Ask one question and stream the reply to stdout",
		Long: `Submits a single prompt, streams the reply to stdout and exits once
the turn resolves. With --interactive the session offers to continue
in chat mode afterwards, keeping the transcript.`,
		Args: cobra.MinimumNArgs(1),
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

			prompt := strings.Join(args, " ")
			if len(attachPaths) > 0 {
				rendered, err := renderAttachments(attachPaths, includeExts, attachTokens)
				if err != nil {
					return err
				}
				prompt = rendered + prompt
			}

			mode := runner.RunModeBlocking
			if interactive {
				mode = runner.RunModeInteractive
			}

			b := runner.NewSessionBuilder(cfg).
				WithContext(ctx).
				WithMode(mode).
				WithPrompt(prompt).
				WithOffline(offline).
				WithMCPTools(!noMCP).
				WithRedisMirror(redisMirror)
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
			if err := cs.Run(); err != nil {
				return err
			}

			if copyReply {
				return copyLastReply(cs.Controller())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use the local echo backend instead of OpenAI")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "Skip loading tools from the MCP server")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Journal every stream frame into this sqlite file")
	cmd.Flags().BoolVar(&redisMirror, "redis-mirror", false, "Mirror the session stream to Redis Streams")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session identity (default: a random UUID)")
	cmd.Flags().StringVar(&system, "system", "", "Override the system prompt")
	cmd.Flags().StringVar(&model, "model", "", "Override the model")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Offer to continue in chat mode after the reply")
	cmd.Flags().BoolVar(&copyReply, "copy", false, "Copy the reply to the clipboard")
	cmd.Flags().StringArrayVar(&attachPaths, "attach", nil, "Files or directories to prepend to the prompt (repeatable)")
	cmd.Flags().StringSliceVar(&includeExts, "include-ext", nil, "Only attach files with these extensions (e.g. .go,.md)")
	cmd.Flags().IntVar(&attachTokens, "max-attach-tokens", 0, "Token budget across attached files (0 is unlimited)")

	return cmd
}

func renderAttachments(paths []string, includeExts []string, maxTokens int) (string, error) {
	collector, err := attach.NewCollector(".", attach.Options{
		IncludeExts: includeExts,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	items, err := collector.Collect(paths...)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	log.Debug().
		Int("files", len(items)).
		Int("tokens", attach.TotalTokens(items)).
		Msg("attaching files to prompt")
	return attach.Render(items), nil
}

func copyLastReply(controller *session.Controller) error {
	entries := controller.Transcript()
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Role == session.RoleAssistant {
			if err := clipboard.WriteAll(entries[i].Content); err != nil {
				return errors.Wrap(err, "copy reply to clipboard")
			}
			log.Debug().Msg("reply copied to clipboard")
			return nil
		}
	}
	return errors.New("no assistant reply to copy")
}
