package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/rescue/pkg/config"
	"github.com/jingkaihe/rescue/pkg/presenter"
	"github.com/jingkaihe/rescue/pkg/stats"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarise recorded recovery outcomes",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := config.FromViper()
		if err != nil {
			presenter.Error(err, "failed to load configuration")
			os.Exit(1)
		}

		dbPath := cfg.DBPath
		if dbPath == "" {
			if dbPath, err = stats.DefaultDBPath(); err != nil {
				presenter.Error(err, "failed to resolve stats database path")
				os.Exit(1)
			}
		}

		store, err := stats.Open(ctx, dbPath)
		if err != nil {
			presenter.Error(err, "failed to open stats database")
			os.Exit(1)
		}
		defer store.Close()

		summary, err := store.Summarize(ctx)
		if err != nil {
			presenter.Error(err, "failed to summarise outcomes")
			os.Exit(1)
		}

		presenter.Section("Recovery Outcomes")
		presenter.Info(fmt.Sprintf("Total failures:  %d", summary.Total))
		presenter.Info(fmt.Sprintf("Recovered:       %d", summary.Recovered))
		presenter.Info(fmt.Sprintf("Escalated:       %d", summary.Escalated))
		presenter.Info(fmt.Sprintf("Total cost:      $%.4f", summary.TotalCost))

		if len(summary.ByTier) > 0 {
			presenter.Section("Recovered By Tier")
			for _, tier := range []string{"tier1", "tier2"} {
				if count, ok := summary.ByTier[tier]; ok {
					presenter.Info(fmt.Sprintf("%-6s  %d", tier, count))
				}
			}
		}

		if len(summary.ByErrorType) > 0 {
			presenter.Section("By Error Type")
			for errorType, count := range summary.ByErrorType {
				presenter.Info(fmt.Sprintf("%-12s  %d", errorType, count))
			}
		}
	},
}
