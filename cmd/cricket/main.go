package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/cricket/pkg/config"
	"github.com/go-go-golems/cricket/pkg/logging"
)

var rootCmd = &cobra.Command{
	Use:   "cricket",
	Short: "Streaming chat sessions on an event bus",
	Long: `cricket runs streaming chat sessions against an OpenAI-compatible
backend. Partial updates travel over a watermill event bus, the session
controller folds them into a transcript, and the terminal UI renders
live previews while a reply is in flight.`,
	SilenceUsage: true,
}

var (
	profileFlag   string
	logLevelFlag  string
	logFileFlag   string
	logCallerFlag bool

	// settings is resolved once per invocation by the persistent pre-run.
	settings *config.Settings
)

func initSettings(cmd *cobra.Command, _ []string) error {
	s, err := config.Load(profileFlag)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		s.LogLevel = logLevelFlag
	}
	if cmd.Flags().Changed("log-file") {
		s.LogFile = logFileFlag
	}
	if err := logging.Init(logging.Settings{
		Level:      s.LogLevel,
		File:       s.LogFile,
		WithCaller: logCallerFlag,
	}); err != nil {
		return err
	}
	settings = s
	log.Debug().Str("profile", profileFlag).Str("model", s.Model).Msg("settings resolved")
	return nil
}

func main() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "Configuration profile to use")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&logCallerFlag, "log-caller", false, "Annotate log lines with file:line")
	rootCmd.PersistentPreRunE = initSettings

	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newAskCommand())
	rootCmd.AddCommand(newTokensCommand())
	rootCmd.AddCommand(newConfigureCommand())
	rootCmd.AddCommand(newProfilesCommand())
	rootCmd.AddCommand(newTailCommand())

	err := rootCmd.Execute()
	cobra.CheckErr(err)
}
