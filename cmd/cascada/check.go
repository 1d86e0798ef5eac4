package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cascadalang/cascada/internal/compiler"
	"github.com/cascadalang/cascada/internal/parser"
	"github.com/cascadalang/cascada/internal/script"
)

func checkCmd() *cobra.Command {
	var isScript bool

	cmd := &cobra.Command{
		Use:   "check <template>",
		Short: "Parse and compile a template or script file without rendering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			src, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %q: %w", path, err)
			}

			templateSrc := string(src)
			if isScript {
				templateSrc, err = script.Transpile(templateSrc)
				if err != nil {
					return fmt.Errorf("%s: transpile error: %w", path, err)
				}
			}

			prog, err := parser.Parse(path, templateSrc)
			if err != nil {
				return fmt.Errorf("%s: parse error: %w", path, err)
			}

			if _, err := compiler.Compile(prog); err != nil {
				return fmt.Errorf("%s: compile error: %w", path, err)
			}

			fmt.Printf("%s: OK\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&isScript, "script", false, "Treat the input as Cascada's script syntax instead of templates")

	return cmd
}
