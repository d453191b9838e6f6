package main

import (
	"fmt"
	"os"

	"github.com/jingkaihe/rescue/pkg/config"
	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/executor"
	"github.com/jingkaihe/rescue/pkg/oracle"
	"github.com/jingkaihe/rescue/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose --context <path> --tier <1|2>",
	Short: "Run one diagnostic tier against a persisted error record",
	Long: `Diagnose a persisted error record with a single tier and append the
resulting recovery attempt to the record in place.

This is the adapter contract used when tiers run as separate processes:
on a successful fix the fix output is written to stdout and the command
exits 0; any other outcome exits non-zero. Progress goes to stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		contextPath, _ := cmd.Flags().GetString("context")
		tierNum, _ := cmd.Flags().GetInt("tier")
		noFix, _ := cmd.Flags().GetBool("no-fix")

		if contextPath == "" {
			presenter.Error(errors.New("--context is required"), "no error record given")
			os.Exit(1)
		}

		tier, err := tierFromNumber(tierNum)
		if err != nil {
			presenter.Error(err, "invalid tier")
			os.Exit(1)
		}

		cfg, err := config.FromViper()
		if err != nil {
			presenter.Error(err, "failed to load configuration")
			os.Exit(1)
		}

		store, err := openStore(cfg)
		if err != nil {
			presenter.Error(err, "failed to open error record store")
			os.Exit(1)
		}

		ec, err := store.Load(contextPath)
		if err != nil {
			presenter.Error(err, "failed to load error record")
			os.Exit(1)
		}

		backend, err := newBackend(cfg)
		if err != nil {
			presenter.Error(err, "failed to configure diagnostic backend")
			os.Exit(1)
		}

		var o oracle.DiagnosticOracle
		switch tier {
		case errctx.Tier1:
			o = oracle.NewTier1(backend, cfg.Oracle.Tier1.Timeout)
		case errctx.Tier2:
			o = oracle.NewTier2(backend, cfg.Oracle.Tier2.Timeout)
		}

		presenter.Info(fmt.Sprintf("Diagnosing %s with %s", ec.CommandLine(), tier))
		attempt := o.Diagnose(ctx, ec)

		if attempt.CanFix && !attempt.Escalate && !noFix && !cfg.NoFix {
			outcome := executor.ApplyFix(ctx, attempt.FixCommand)
			attempt.FixApplied = &outcome
		}

		if _, err := store.Append(contextPath, attempt); err != nil {
			presenter.Error(err, "failed to append recovery attempt")
			os.Exit(1)
		}

		if attempt.Succeeded() {
			fmt.Print(attempt.FixApplied.Output)
			return
		}

		presenter.Warning(fmt.Sprintf("%s did not resolve the failure: %s", tier, attempt.Diagnosis))
		os.Exit(1)
	},
}

func init() {
	diagnoseCmd.Flags().String("context", "", "Path to the error record to diagnose")
	diagnoseCmd.Flags().Int("tier", 1, "Diagnostic tier to run (1 or 2)")
	diagnoseCmd.Flags().Bool("no-fix", false, "Diagnose only; record the suggested fix without executing it")
}

func tierFromNumber(n int) (errctx.Tier, error) {
	switch n {
	case 1:
		return errctx.Tier1, nil
	case 2:
		return errctx.Tier2, nil
	default:
		return "", errors.Errorf("tier must be 1 or 2, got %d", n)
	}
}
