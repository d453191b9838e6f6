package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jingkaihe/rescue/pkg/config"
	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/presenter"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect persisted error records",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted error records",
	Run: func(cmd *cobra.Command, args []string) {
		store, records, err := loadRecords()
		if err != nil {
			presenter.Error(err, "failed to list error records")
			os.Exit(1)
		}

		if len(records) == 0 {
			presenter.Info("No error records found")
			return
		}

		for _, ec := range records {
			status := "escalated"
			if ec.Resolved() {
				status = "recovered"
			} else if len(ec.RecoveryAttempts) < len(errctx.Tiers) {
				status = "in progress"
			}
			fmt.Printf("%s  %-11s  attempts=%d  %s\n",
				filepath.Base(store.Path(ec)), status, len(ec.RecoveryAttempts), ec.CommandLine())
		}
	},
}

var logsShowCmd = &cobra.Command{
	Use:   "show <record>",
	Short: "Show one error record as JSON",
	Long: `Show the full JSON of one persisted error record. The record may be
referenced by file name, a fragment of the timestamped name, or an ID prefix.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		store, _, err := loadRecords()
		if err != nil {
			presenter.Error(err, "failed to open error record store")
			os.Exit(1)
		}

		ec, err := store.Find(args[0])
		if err != nil {
			presenter.Error(err, fmt.Sprintf("no record matches %q", args[0]))
			os.Exit(1)
		}

		data, err := json.MarshalIndent(ec, "", "  ")
		if err != nil {
			presenter.Error(err, "failed to render error record")
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

func init() {
	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsShowCmd)
}

func loadRecords() (*errctx.Store, []*errctx.ErrorContext, error) {
	cfg, err := config.FromViper()
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	records, err := store.List()
	if err != nil {
		return nil, nil, err
	}
	return store, records, nil
}
