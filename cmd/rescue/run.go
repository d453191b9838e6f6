package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jingkaihe/rescue/pkg/config"
	"github.com/jingkaihe/rescue/pkg/errctx"
	"github.com/jingkaihe/rescue/pkg/logger"
	"github.com/jingkaihe/rescue/pkg/oracle"
	"github.com/jingkaihe/rescue/pkg/pipeline"
	"github.com/jingkaihe/rescue/pkg/presenter"
	"github.com/jingkaihe/rescue/pkg/stats"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command> [args...]",
	Short: "Run an operation with tiered error recovery",
	Long: `Run an operation and, if it fails, diagnose the failure with the tiered
oracles, apply a suggested fix when one is offered, and escalate to the
operator with the full error context when recovery is exhausted.

Exit code 0 means the operation succeeded or was recovered; exit code 1
means the failure was escalated and the error context was written to stderr.`,
	Example: `  rescue run -- git push origin main
  rescue run --no-fix -- terraform apply -auto-approve
  rescue run --backend anthropic -- ./deploy.sh staging`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 || cmd.ArgsLenAtDash() > 0 {
			presenter.Error(errors.New("no operation given"), "usage: rescue run [flags] -- <command> [args...]")
			os.Exit(1)
		}

		ctx := cmd.Context()
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

		backend, err := newBackend(cfg)
		if err != nil {
			presenter.Error(err, "failed to configure diagnostic backend")
			os.Exit(1)
		}

		oracles := []oracle.DiagnosticOracle{
			oracle.NewTier1(backend, cfg.Oracle.Tier1.Timeout),
			oracle.NewTier2(backend, cfg.Oracle.Tier2.Timeout),
		}

		opts := []pipeline.Option{}
		if cfg.NoFix {
			opts = append(opts, pipeline.WithFixesDisabled())
		}
		if recorder := openRecorder(cmd, cfg); recorder != nil {
			opts = append(opts, pipeline.WithRecorder(recorder))
		}

		result, err := pipeline.New(store, oracles, opts...).Run(ctx, args[0], args[1:])
		if err != nil {
			presenter.Error(err, "recovery pipeline failed")
			os.Exit(1)
		}

		switch result.Status {
		case pipeline.StatusSucceeded:
			fmt.Print(result.Output)

		case pipeline.StatusRecovered:
			fmt.Print(result.Output)
			presenter.Success(fmt.Sprintf("Operation recovered by %s", result.ResolvedBy))
			if attempt, ok := result.Context.AttemptFor(result.ResolvedBy); ok && attempt.Usage != nil {
				presenter.Stats(&presenter.DiagnosisStats{
					Tier:         string(result.ResolvedBy),
					Duration:     attempt.Usage.Duration,
					InputTokens:  attempt.Usage.InputTokens,
					OutputTokens: attempt.Usage.OutputTokens,
					Cost:         attempt.Usage.Cost,
				})
			}

		case pipeline.StatusEscalated:
			dumpContext(result.Context)
			presenter.Error(errors.New("automated recovery exhausted"),
				fmt.Sprintf("error context written to %s", result.ContextPath))
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().Bool("no-fix", false, "Diagnose only; record suggested fixes without executing them")
	runCmd.Flags().String("logs-dir", "", "Directory for error context records (default ~/.rescue/errors)")
	runCmd.Flags().String("db-path", "", "Path to the outcome stats database (default ~/.rescue/stats.db)")
	runCmd.Flags().String("backend", "", "Diagnostic backend (cli or anthropic)")
	runCmd.Flags().Duration("tier1-timeout", 0, "Availability budget for the fast triage tier")
	runCmd.Flags().Duration("tier2-timeout", 0, "Availability budget for the research tier")

	bindFlags(runCmd.Flags(), map[string]string{
		"no-fix":        "no_fix",
		"logs-dir":      "logs_dir",
		"db-path":       "db_path",
		"backend":       "oracle.backend",
		"tier1-timeout": "oracle.tier1.timeout",
		"tier2-timeout": "oracle.tier2.timeout",
	})
}

// openStore resolves the logs directory from config or the default location.
func openStore(cfg config.Config) (*errctx.Store, error) {
	dir := cfg.LogsDir
	if dir == "" {
		var err error
		if dir, err = errctx.DefaultDir(); err != nil {
			return nil, err
		}
	}
	return errctx.NewStore(dir)
}

// newBackend selects the configured diagnostic backend.
func newBackend(cfg config.Config) (oracle.Backend, error) {
	switch cfg.Oracle.Backend {
	case "cli":
		return oracle.NewCLIBackend(cfg.Oracle), nil
	case "anthropic":
		return oracle.NewAnthropicBackend(cfg.Oracle), nil
	default:
		return nil, errors.Errorf("unknown oracle backend %q", cfg.Oracle.Backend)
	}
}

// openRecorder opens the outcome index. Stats are best-effort: a broken index
// never blocks recovery.
func openRecorder(cmd *cobra.Command, cfg config.Config) pipeline.Recorder {
	dbPath := cfg.DBPath
	if dbPath == "" {
		var err error
		if dbPath, err = stats.DefaultDBPath(); err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("stats index disabled")
			return nil
		}
	}

	store, err := stats.Open(cmd.Context(), dbPath)
	if err != nil {
		logger.G(cmd.Context()).WithError(err).Warn("stats index disabled")
		return nil
	}
	cobra.OnFinalize(func() { store.Close() })
	return store
}

// dumpContext writes the full error context to stderr for the operator.
func dumpContext(ec *errctx.ErrorContext) {
	data, err := json.MarshalIndent(ec, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to render error context: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}
