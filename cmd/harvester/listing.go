package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/services/browser"
	"github.com/ternarybob/harvester/internal/services/listing"
	"github.com/ternarybob/harvester/internal/storage/badger"
	"github.com/ternarybob/harvester/internal/storage/recordstore"
)

var listingCmd = &cobra.Command{
	Use:   "listing",
	Short: "Populate the record store from a search listing",
	RunE:  runListing,
}

var (
	listingURL      string
	listingMaxPages int
	listingStore    string
)

func init() {
	listingCmd.Flags().StringVar(&listingURL, "url", "", "Search results URL (overrides config)")
	listingCmd.Flags().IntVar(&listingMaxPages, "max-pages", 0, "Stop after this many pages, 0 for no limit")
	listingCmd.Flags().StringVar(&listingStore, "store", "", "Record store path (overrides config)")
}

func runListing(cmd *cobra.Command, args []string) error {
	if listingURL != "" {
		config.Listing.URL = listingURL
	}
	if cmd.Flags().Changed("max-pages") {
		config.Listing.MaxPages = listingMaxPages
	}
	if listingStore != "" {
		config.Store.Path = listingStore
	}
	if config.Listing.URL == "" {
		return fmt.Errorf("a listing url is required (--url or [listing] url)")
	}

	common.PrintBanner(common.GetVersion())

	ctx, stop := signalContext()
	defer stop()

	var journal *badger.Journal
	if config.Journal.Enabled {
		j, err := badger.OpenJournal(config.Journal.Path, logger)
		if err != nil {
			logger.Warn().Err(err).Str("path", config.Journal.Path).Msg("Session journal unavailable, continuing without store lease")
		} else {
			journal = j
			defer journal.Close()
		}
	}

	release, err := holdStoreLease(journal, config.Store.Path, leaseOwner(), listingLeaseTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release store lease")
		}
	}()

	surface, err := browser.NewChromeSurface(config.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer surface.Close()

	store := recordstore.NewOsFileStore(config.Store.Path, logger)
	result, err := listing.NewHarvester(surface, store, config.Listing, logger).Run(ctx)
	if err != nil {
		return err
	}

	logger.Info().
		Int("pages", result.Pages).
		Int("found", result.Found).
		Int("added", result.Added).
		Int("duplicates", result.Duplicates).
		Bool("interrupted", result.Interrupted).
		Str("store", store.Path()).
		Msg("Listing harvest finished")
	return nil
}
