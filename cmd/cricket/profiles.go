package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cricket/pkg/config"
)

func newProfilesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage cricket profiles",
	}
	cmd.AddCommand(newProfilesListCommand())
	cmd.AddCommand(newProfilesGetCommand())
	cmd.AddCommand(newProfilesSetCommand())
	cmd.AddCommand(newProfilesDeleteCommand())
	cmd.AddCommand(newProfilesDefaultCommand())
	cmd.AddCommand(newProfilesDuplicateCommand())
	cmd.AddCommand(newProfilesEditCommand())
	cmd.AddCommand(newProfilesInitCommand())
	return cmd
}

func openProfilesEditor() (*config.ProfilesEditor, string, error) {
	path, err := config.ProfilesPath()
	if err != nil {
		return nil, "", err
	}
	editor, err := config.NewProfilesEditor(path)
	if err != nil {
		return nil, "", err
	}
	return editor, path, nil
}

func newProfilesListCommand() *cobra.Command {
	var concise bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, _, err := openProfilesEditor()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range editor.Names() {
				if concise {
					_, _ = fmt.Fprintln(out, name)
					continue
				}
				marker := ""
				if name == editor.Default() {
					marker = " (default)"
				}
				_, _ = fmt.Fprintf(out, "%s%s:\n", name, marker)
				p, err := editor.Get(name)
				if err != nil {
					return err
				}
				printProfile(out, p)
				_, _ = fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&concise, "concise", "c", false, "Only show profile names")
	return cmd
}

func newProfilesGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <profile> [key]",
		Short: "Show profile settings",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, _, err := openProfilesEditor()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) == 2 {
				// An explicit key request prints the raw value.
				value, err := editor.GetValue(args[0], args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, value)
				return nil
			}

			p, err := editor.Get(args[0])
			if err != nil {
				return err
			}
			printProfile(out, p)
			return nil
		},
	}
}

func newProfilesSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <profile> <key> <value>",
		Short: "Set a profile setting",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, _, err := openProfilesEditor()
			if err != nil {
				return err
			}
			if err := editor.SetValue(args[0], args[1], args[2]); err != nil {
				return err
			}
			return editor.Save()
		},
	}
}

func newProfilesDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <profile> [key]",
		Short: "Delete a profile or clear one of its settings",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, _, err := openProfilesEditor()
			if err != nil {
				return err
			}
			if len(args) == 2 {
				if err := editor.DeleteValue(args[0], args[1]); err != nil {
					return err
				}
			} else if err := editor.Delete(args[0]); err != nil {
				return err
			}
			return editor.Save()
		},
	}
}

func newProfilesDefaultCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default <profile>",
		Short: "Make a profile the default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, _, err := openProfilesEditor()
			if err != nil {
				return err
			}
			if err := editor.SetDefault(args[0]); err != nil {
				return err
			}
			return editor.Save()
		},
	}
}

func newProfilesDuplicateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <source-profile> <new-profile>",
		Short: "Duplicate an existing profile with a new name",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			editor, _, err := openProfilesEditor()
			if err != nil {
				return err
			}
			if err := editor.Duplicate(args[0], args[1]); err != nil {
				return err
			}
			if err := editor.Save(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Duplicated profile %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newProfilesEditCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "edit",
		Short: "Edit the profiles file in your default editor",
		RunE: func(cmd *cobra.Command, args []string) error {
			editor := os.Getenv("EDITOR")
			if editor == "" {
				editor = "vim"
			}

			path, err := config.ProfilesPath()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return errors.Wrap(err, "create profiles directory")
			}

			editCmd := exec.Command(editor, path)
			editCmd.Stdin = os.Stdin
			editCmd.Stdout = os.Stdout
			editCmd.Stderr = os.Stderr
			return editCmd.Run()
		},
	}
}

func newProfilesInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new profiles file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ProfilesPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return errors.Errorf("profiles file already exists at %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return errors.Wrap(err, "create profiles directory")
			}

			initialContent := `# cricket profiles
#
# Each profile overrides the built-in defaults; environment variables
# override the profile. Select one with --profile or the "default" key.
#
# Settings: openai_api_key, openai_base_url, model, max_tokens,
# system_prompt, mcp_server_url, redis_addr, log_level, log_file.
#
# Example:
#
# default: work
# profiles:
#   work:
#     openai_api_key: sk-...
#     model: gpt-4o
#   local:
#     openai_base_url: http://localhost:8000/v1
#     model: llama-3.1-8b
#
# Manage this file with the 'cricket profiles' commands, or run
# 'cricket configure' for a guided form.
`
			if err := os.WriteFile(path, []byte(initialContent), 0o600); err != nil {
				return errors.Wrapf(err, "write %s", path)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created new profiles file at %s\n", path)
			return nil
		},
	}
}

func printProfile(out io.Writer, p config.Profile) {
	for _, key := range config.ProfileKeys {
		value, err := p.Value(key)
		if err != nil || value == "" {
			continue
		}
		if key == "openai_api_key" {
			value = maskSecret(value)
		}
		_, _ = fmt.Fprintf(out, "  %s: %s\n", key, value)
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
