package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cricket/pkg/config"
)

func newConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Edit a configuration profile interactively",
		Long: `Opens a form seeded with the currently resolved settings and writes
the result back as a named profile. The profile to edit is selected
with the global --profile flag; without it the "default" profile is
edited.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := profileFlag
			if name == "" {
				name = "default"
			}

			p := config.FromSettings(settings)
			maxTokens := ""
			if p.MaxTokens > 0 {
				maxTokens = strconv.Itoa(p.MaxTokens)
			}

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("OpenAI API key").
						EchoMode(huh.EchoModePassword).
						Value(&p.OpenAIAPIKey),
					huh.NewInput().
						Title("OpenAI base URL").
						Description("Leave empty for the default endpoint").
						Value(&p.OpenAIBaseURL),
					huh.NewInput().
						Title("Model").
						Value(&p.Model),
					huh.NewInput().
						Title("Max tokens per reply").
						Validate(validateOptionalInt).
						Value(&maxTokens),
				),
				huh.NewGroup(
					huh.NewText().
						Title("System prompt").
						Value(&p.SystemPrompt),
					huh.NewInput().
						Title("MCP server URL").
						Description("Tool server; leave empty to use the default").
						Value(&p.MCPServerURL),
					huh.NewInput().
						Title("Redis address").
						Description("Used by --redis-mirror and the tail command").
						Value(&p.RedisAddr),
					huh.NewSelect[string]().
						Title("Log level").
						Options(huh.NewOptions("trace", "debug", "info", "warn", "error")...).
						Value(&p.LogLevel),
				),
			)
			if err := form.Run(); err != nil {
				return errors.Wrap(err, "run configuration form")
			}

			p.MaxTokens = 0
			if v, err := strconv.Atoi(strings.TrimSpace(maxTokens)); err == nil {
				p.MaxTokens = v
			}

			path, err := config.ProfilesPath()
			if err != nil {
				return err
			}
			if err := config.SaveProfile(path, name, p); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %q to %s\n", name, path)
			return nil
		},
	}
	return cmd
}

// validateOptionalInt accepts an empty value, which leaves the setting
// at its default.
func validateOptionalInt(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
		return errors.New("must be a whole number")
	}
	return nil
}
