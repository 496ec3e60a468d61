package main

import (
	"fmt"
	"io"
	"os"

	"memchat/internal/service"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newExportCmd(open memoryOpener) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole knowledge store as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q, want json or yaml", format)
			}

			return withMemory(cmd, open, func(memory *service.MemoryService) error {
				data, err := render(memory, format)
				if err != nil {
					return err
				}

				var out io.Writer = cmd.OutOrStdout()
				if output != "" {
					file, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("failed to create %s: %w", output, err)
					}
					defer file.Close()
					out = file
				}
				_, err = out.Write(data)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func render(memory *service.MemoryService, format string) ([]byte, error) {
	if format == "yaml" {
		data, err := yaml.Marshal(memory.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to render yaml: %w", err)
		}
		return data, nil
	}

	data, err := memory.Export()
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
