package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/harvester/internal/services/stats"
	"github.com/ternarybob/harvester/internal/storage/recordstore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print record store statistics",
	RunE:  runStats,
}

var statsStore string

func init() {
	statsCmd.Flags().StringVar(&statsStore, "store", "", "Record store path (overrides config)")
}

func runStats(cmd *cobra.Command, args []string) error {
	if statsStore != "" {
		config.Store.Path = statsStore
	}

	store := recordstore.NewOsFileStore(config.Store.Path, logger)
	s, err := stats.SummarizeStore(context.Background(), store)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Store: %s\n", store.Path())
	fmt.Fprintf(out, "Total records:                  %d\n", s.Total)
	fmt.Fprintf(out, "With details and media:         %d\n", s.DetailsAndMedia)
	fmt.Fprintf(out, "With details, without media:    %d\n", s.DetailsOnly)
	fmt.Fprintf(out, "Without details, with media:    %d\n", s.MediaOnly)
	fmt.Fprintf(out, "Without details and media:      %d\n", s.NeitherDetailsNor)
	fmt.Fprintf(out, "Published:                      %d\n", s.Published)
	return nil
}
