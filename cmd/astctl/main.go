// Command astctl works with application form documents from the command
// line: parse them to JSON, reformat them, validate them and seed them into
// the form store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "astctl",
	Short:         "Application form document tool",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("ASTAPP_CONFIG"), "path to a YAML config file")
	rootCmd.AddCommand(parseCmd, fmtCmd, validateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
