package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ternarybob/harvester/internal/storage/badger"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent harvest sessions from the journal",
	RunE:  runSessions,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 10, "Number of sessions to show")
}

func runSessions(cmd *cobra.Command, args []string) error {
	journal, err := badger.OpenJournal(config.Journal.Path, logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	reports, err := journal.ListSessions(context.Background(), sessionsLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDURATION\tSTOP\tTOTAL\tSKIPPED\tKEPT\tREMOVED\tUNREACHABLE\tREMAINING")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Second),
			r.StopReason,
			r.Total, r.Skipped, r.Kept, r.Removed, r.Unreachable, r.Remaining,
		)
	}
	return w.Flush()
}
