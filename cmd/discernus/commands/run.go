package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/discernus/discernus/internal/orchestrator"
	"github.com/discernus/discernus/internal/printer"
	"github.com/discernus/discernus/internal/runstate"
	"github.com/discernus/discernus/pkg/pipeline"
)

var (
	runID         string
	runInput      string
	runInputFile  string
	runResumeFrom string
	runStopAfter  string
	runSourceRun  string
	runReset      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the configured pipeline phases",
	Long: `Execute the pipeline's phases in order, one task per phase, recording
completion and provenance in the run directory after every phase.

If a previous run died partway, rerunning resumes from the first
incomplete phase; finished phases are skipped and their artifacts are
carried forward. Use --resume-from to assert where execution should
start - the command refuses if any earlier phase is incomplete.

Examples:
  # Fresh run over an inline input
  discernus run --input '{"corpus":"q3-filings"}'

  # Resume after a crash, asserting statistical is next
  discernus run --resume-from statistical --source-run run-7f3a

  # Recover from corrupt phase state
  discernus run --reset --input '{"corpus":"q3-filings"}'`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runID, "run-id", "", "Identifier for this run (auto-generated if omitted)")
	runCmd.Flags().StringVar(&runInput, "input", "", "Inline input payload for the first phase")
	runCmd.Flags().StringVar(&runInputFile, "input-file", "", "File whose content is stored as the first phase's input artifact")
	runCmd.Flags().StringVar(&runResumeFrom, "resume-from", "", "Phase to resume from (earlier phases must be complete)")
	runCmd.Flags().StringVar(&runStopAfter, "stop-after", "", "Last phase to execute (default: final phase)")
	runCmd.Flags().StringVar(&runSourceRun, "source-run", "", "Run ID whose completed phases this run inherits (recorded in provenance)")
	runCmd.Flags().BoolVar(&runReset, "reset", false, "Discard unreadable phase state before running")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Run == nil {
		return printer.Error(
			"no run section configured",
			"The run command needs a run directory and phase list in the configuration.",
			[]string{"Add a run section with at least 'dir' to " + configPath},
		)
	}

	phases := cfg.Run.Phases
	if len(phases) == 0 {
		phases = runstate.DefaultPhases()
	}

	tracker, err := runstate.NewTracker(cfg.Run.Dir, phases)
	if err != nil {
		return err
	}
	if tracker.Corrupt() {
		if !runReset {
			return printer.ErrorWithContext(
				"run state is corrupt",
				"The phase-state file could not be read. Completed work cannot be verified, so no phase will be recorded until the state is reset.",
				map[string]string{"Run directory": cfg.Run.Dir},
				[]string{
					"Rerun with --reset to discard the state and start over",
					"Or start a fresh run directory and keep this one for inspection",
				},
			)
		}
		if err := tracker.Reset(); err != nil {
			return err
		}
		printer.Warning("Discarded unreadable phase state in %s\n", cfg.Run.Dir)
	}

	id := runID
	if id == "" {
		id = fmt.Sprintf("run-%s", uuid.New().String()[:8])
	}

	start := runResumeFrom
	if start == "" {
		start = phases[0]
	}
	end := runStopAfter
	if end == "" {
		end = phases[len(phases)-1]
	}

	prov, err := runstate.NewProvenance(cfg.Run.Dir, id, runSourceRun, runResumeFrom)
	if err != nil {
		return err
	}

	client, err := connectClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	payload, err := initialPayload(ctx, client)
	if err != nil {
		return err
	}

	engine, err := orchestrator.NewEngine(client, cfg.Orchestrator.PollIntervalDuration())
	if err != nil {
		return err
	}
	runner, err := orchestrator.NewRunner(engine, tracker, prov, id, cfg.Orchestrator.TaskTimeoutDuration())
	if err != nil {
		return err
	}

	printer.Step("Run %s: phases %s through %s\n", id, start, end)
	if err := runner.Execute(ctx, payload, start, end); err != nil {
		return printer.ErrorWithContext(
			"run failed",
			err.Error(),
			map[string]string{
				"Run ID":           id,
				"Run directory":    cfg.Run.Dir,
				"Completed phases": strings.Join(tracker.GetCompletedPhases(), ", "),
			},
			[]string{"Fix the failing phase's worker, then rerun to resume from it"},
		)
	}

	printer.Success("Run %s complete: %s\n", id, strings.Join(tracker.GetCompletedPhases(), ", "))
	return nil
}

// initialPayload resolves the first phase's input. A file input is stored as
// an artifact and passed by reference so reruns of the same corpus hit the
// dedup path instead of re-uploading.
func initialPayload(ctx context.Context, client *pipeline.Client) (string, error) {
	if runInputFile == "" {
		return runInput, nil
	}
	if runInput != "" {
		return "", fmt.Errorf("--input and --input-file are mutually exclusive")
	}

	data, err := os.ReadFile(runInputFile)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}

	hash, err := client.PutArtifact(ctx, data)
	if err != nil {
		return "", err
	}
	return pipeline.HashPrefix + hash, nil
}
