package main

import (
	"fmt"
	"strings"

	"memchat/internal/models"
	"memchat/internal/service"

	"github.com/spf13/cobra"
)

func newWriteCmd(open memoryOpener) *cobra.Command {
	var (
		domain string
		tags   []string
		status string
	)

	cmd := &cobra.Command{
		Use:   "write <content>",
		Short: "Store a new document, as write_memory does",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if domain == "" {
				return fmt.Errorf("--domain is required")
			}
			meta := &models.WriteMetadata{
				Tags:   tags,
				Status: models.KnowledgeStatus(status),
			}

			return withMemory(cmd, open, func(memory *service.MemoryService) error {
				doc, err := memory.WriteAndSave(cmd.Context(), strings.Join(args, " "), domain, meta)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\n", domain, doc.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "domain to file the document under")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag the document (repeatable)")
	cmd.Flags().StringVar(&status, "status", "", "current, outdated or deprecated")
	return cmd
}
