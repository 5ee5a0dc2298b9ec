package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/discernus/discernus/internal/printer"
	"github.com/discernus/discernus/internal/runstate"
	"github.com/discernus/discernus/pkg/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the run directory's phase state and provenance",
	Long: `Show per-phase completion state for the configured run directory,
the latest provenance event, and which phase a resumed run would start
from.

Examples:
  discernus status
  discernus status --config prod.yml`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Run == nil {
		return printer.Error(
			"no run section configured",
			"Status reads phase state from the run directory named in the configuration.",
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

	printer.Info("Run directory: %s\n\n", cfg.Run.Dir)

	if tracker.Corrupt() {
		printer.Warning("Phase state is unreadable; completed work cannot be verified.\n")
		printer.Info("Run 'discernus run --reset' to discard it.\n")
		return nil
	}

	resumeFrom := ""
	for _, phase := range phases {
		record, ok := tracker.GetPhaseRecord(phase)
		switch {
		case ok && record.Completed:
			printer.Success("%-14s complete  %s  run=%s  artifacts=%s\n",
				phase,
				record.Timestamp.Format("2006-01-02 15:04:05"),
				record.RunID,
				summarizeHashes(record.ArtifactHashes))
		default:
			if resumeFrom == "" {
				resumeFrom = phase
			}
			printer.Info("  %-14s pending\n", phase)
		}
	}

	printer.Println()
	if resumeFrom == "" {
		printer.Success("All phases complete.\n")
	} else if tracker.CanResumeFrom(resumeFrom) {
		printer.Step("Next run resumes from %q.\n", resumeFrom)
	}

	prov, err := runstate.LoadProvenance(cfg.Run.Dir)
	if err != nil {
		if pipeline.IsCorruptState(err) {
			printer.Info("No readable provenance record in this run directory.\n")
			return nil
		}
		return err
	}

	record := prov.Record()
	printer.Info("Last run: %s", record.RunID)
	if record.SourceRun != "" {
		printer.Info(" (resumed from %s at %s)", record.SourceRun, record.ResumePoint)
	}
	printer.Println()
	printer.Info("Artifacts: %d created, %d inherited\n", len(record.ArtifactsCreated), len(record.ArtifactsCopied))

	if entry, ok := prov.LatestTimelineEntry(); ok {
		printer.Info("Latest event: %s %s at %s\n",
			entry.Phase, entry.Event, entry.Timestamp.Format("2006-01-02 15:04:05"))
	}

	return nil
}

func summarizeHashes(hashes []string) string {
	if len(hashes) == 0 {
		return "none"
	}
	short := make([]string, len(hashes))
	for i, h := range hashes {
		if len(h) > 12 {
			h = h[:12]
		}
		short[i] = h
	}
	return strings.Join(short, ",")
}
