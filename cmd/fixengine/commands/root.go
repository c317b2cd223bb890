// Package commands implements the fixengine CLI command tree.
package commands

import (
	"os"

	"github.com/spf13/cobra"

	cliconfig "fixengine/cmd/fixengine/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "fixengine",
	Short: "fixengine - FIX session engine",
	Long: `fixengine is a FIX session engine: a protocol-correct FIX 4.x
session state machine (logon/logout/heartbeat/resend/sequence-reset) and a
zero-copy wire codec, with acceptor and initiator connectivity and a
pluggable durable session registry.

Use "fixengine [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/fixengine/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(cliconfig.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("fixengine %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	cmd := rootCmd
	cmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
