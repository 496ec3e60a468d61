package main

import (
	"encoding/json"
	"fmt"

	"memchat/internal/models"
	"memchat/internal/service"

	"github.com/spf13/cobra"
)

func newSearchCmd(open memoryOpener) *cobra.Command {
	var (
		domain string
		filter models.SearchFilter
		status string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge store the way recall_memory does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Status = models.KnowledgeStatus(status)
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid status %q", status)
			}

			return withMemory(cmd, open, func(memory *service.MemoryService) error {
				results := memory.Search(args[0], domain, &filter)
				data, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d results for %q\n%s\n", len(results), args[0], data)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "only search this domain")
	cmd.Flags().StringSliceVar(&filter.Tags, "tag", nil, "require any of these tags (repeatable)")
	cmd.Flags().StringVar(&filter.Before, "before", "", "only documents older than this timestamp")
	cmd.Flags().StringVar(&filter.After, "after", "", "only documents newer than this timestamp")
	cmd.Flags().StringVar(&status, "status", "", "current, outdated or deprecated")
	return cmd
}
