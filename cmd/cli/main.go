package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/hoerquiz/cmd/cli/practice"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(practice.Group)
	rootCmd.AddCommand(practice.Topics)
	rootCmd.AddCommand(practice.Round)
}

var rootCmd = &cobra.Command{ //nolint:exhaustruct // defaults are fine
	Use:  "hoerquiz-cli",
	Long: `Command line utilities for Hörquiz https://github.com/myrjola/hoerquiz`,
	Run: func(_ *cobra.Command, _ []string) {
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
