// Command cascada is the CLI front-end for the engine: render a template
// or script file against a YAML data file, or check one for syntax/compile
// errors without rendering it (§4.15).
//
// Grounded on oriys-nova's cmd/nova/main.go: a cobra root command with
// PersistentFlags for shared configuration, one function per subcommand
// returning a configured *cobra.Command, errors surfaced by returning them
// from RunE rather than os.Exit-ing inside a handler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "cascada",
		Short: "Cascada template/script render engine",
		Long:  "Render Cascada templates and scripts, or check them for errors, from the command line.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a cascada environment config (YAML)")

	rootCmd.AddCommand(renderCmd(), checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
