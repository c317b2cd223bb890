// Package config implements configuration-management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Inspect fixengine configuration.

Subcommands:
  show   Display the effective configuration`,
}

func init() {
	Cmd.AddCommand(showCmd)
}
