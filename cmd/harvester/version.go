package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/harvester/internal/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Harvester version %s\n", common.GetFullVersion())
	},
}
