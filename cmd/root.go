package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X github.com/nextlevelbuilder/teleclaw/cmd.Version=v1.0.0"
var Version = "dev"

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "teleclaw [directory] [session-id]",
	Short: "Teleclaw is a Telegram bridge for opencode",
	Long: "Teleclaw bridges a local opencode agent to a Telegram forum channel:\n" +
		"messages become prompts, streaming replies become throttled edits, and\n" +
		"multiple devices coordinate leadership over a shared iCloud store.",
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := os.Getwd()
		if err != nil {
			return err
		}
		sessionID := ""
		if len(args) > 0 {
			dir = args[0]
		}
		if len(args) > 1 {
			sessionID = args[1]
		}
		return runBridge(dir, sessionID)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("teleclaw %s\n", Version)
		},
	}
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "teleclaw:", err)
		os.Exit(1)
	}
}
