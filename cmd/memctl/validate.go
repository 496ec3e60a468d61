package main

import (
	"fmt"
	"os"

	"memchat/internal/memory"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a store export before importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			findings := memory.Validate(data)
			out := cmd.OutOrStdout()
			if len(findings) == 0 {
				fmt.Fprintf(out, "%s: valid\n", args[0])
				return nil
			}
			printFindings(cmd, args[0], findings)
			return fmt.Errorf("%s: %d validation errors", args[0], len(findings))
		},
	}
}

func printFindings(cmd *cobra.Command, source string, findings []memory.Finding) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d validation errors\n", source, len(findings))
	for _, f := range findings {
		fmt.Fprintf(out, "  %s\n", f)
	}
}
