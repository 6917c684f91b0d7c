package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/services/browser"
	"github.com/ternarybob/harvester/internal/services/budget"
	"github.com/ternarybob/harvester/internal/services/extractor"
	"github.com/ternarybob/harvester/internal/services/harvest"
	"github.com/ternarybob/harvester/internal/services/metrics"
	"github.com/ternarybob/harvester/internal/services/recovery"
	"github.com/ternarybob/harvester/internal/services/scheduler"
	"github.com/ternarybob/harvester/internal/storage/badger"
	"github.com/ternarybob/harvester/internal/storage/recordstore"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Fill missing details and media in the record store",
	Long: `Runs one time-bounded session over the record store. Complete records are
skipped, incomplete ones are retried within their attempt ceilings and either
kept or removed. With --schedule, sessions repeat on a cron schedule.`,
	RunE: runHarvest,
}

var (
	harvestStore    string
	harvestSchedule string
	harvestHeadless bool
)

func init() {
	harvestCmd.Flags().StringVar(&harvestStore, "store", "", "Record store path (overrides config)")
	harvestCmd.Flags().StringVar(&harvestSchedule, "schedule", "", "Cron expression for recurring sessions (overrides config)")
	harvestCmd.Flags().BoolVar(&harvestHeadless, "headless", true, "Run the browser headless")
}

func runHarvest(cmd *cobra.Command, args []string) error {
	if harvestStore != "" {
		config.Store.Path = harvestStore
	}
	if harvestSchedule != "" {
		config.Harvest.Schedule = harvestSchedule
	}
	if cmd.Flags().Changed("headless") {
		config.Browser.Headless = harvestHeadless
	}

	common.PrintBanner(common.GetVersion())

	ctx, stop := signalContext()
	defer stop()

	var journal *badger.Journal
	if config.Journal.Enabled {
		j, err := badger.OpenJournal(config.Journal.Path, logger)
		if err != nil {
			logger.Warn().Err(err).Str("path", config.Journal.Path).Msg("Session journal unavailable, continuing without it")
		} else {
			journal = j
			defer journal.Close()
		}
	}

	collector := metrics.NewCollector()
	session := func(ctx context.Context) error {
		release, err := holdStoreLease(journal, config.Store.Path, leaseOwner(), leaseTTL())
		if err != nil {
			return err
		}
		defer func() {
			if err := release(); err != nil {
				logger.Warn().Err(err).Msg("Failed to release store lease")
			}
		}()
		return runSession(ctx, journal, collector)
	}

	if config.Harvest.Schedule == "" {
		return session(ctx)
	}

	svc, err := scheduler.NewService(config.Harvest.Schedule, session, logger)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}

	if err := svc.Trigger(); err != nil {
		logger.Warn().Err(err).Msg("Initial session failed, waiting for next schedule")
	}

	<-ctx.Done()
	logger.Info().Msg("Interrupt signal received, stopping scheduler")
	svc.Stop()
	return nil
}

// runSession opens a browser, runs one orchestrated session and exports metrics
func runSession(ctx context.Context, journal *badger.Journal, collector *metrics.Collector) error {
	clock := budget.New(config.Harvest.RunBudget(), config.Harvest.GraceBudget())

	surface, err := browser.NewChromeSurface(config.Browser, logger)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer surface.Close()

	store := recordstore.NewOsFileStore(config.Store.Path, logger)
	ex := extractor.NewExtractor(config.Extractor, config.Harvest.MaxDetailFragments, logger)
	policy := recovery.NewPolicy(config.Recovery, logger)
	attempts := harvest.NewAttemptLoop(surface, ex, policy, config.Harvest, collector, logger)

	opts := []harvest.Option{
		harvest.WithObserver(collector),
		harvest.WithMaxUnreachable(config.Harvest.MaxUnreachable),
	}
	if journal != nil {
		opts = append(opts, harvest.WithJournal(journal))
	}
	orchestrator := harvest.NewOrchestrator(store, attempts, config.Harvest.MaxMedia, logger, opts...)

	report, runErr := orchestrator.Run(ctx, clock)

	if config.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(config.Metrics.Textfile); err != nil {
			logger.Warn().Err(err).Str("path", config.Metrics.Textfile).Msg("Failed to export metrics")
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info().
		Str("session_id", report.ID).
		Str("stop_reason", string(report.StopReason)).
		Int("kept", report.Kept).
		Int("removed", report.Removed).
		Int("unreachable", report.Unreachable).
		Int("skipped", report.Skipped).
		Msg("Session finished")
	return nil
}
