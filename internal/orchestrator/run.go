package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/discernus/discernus/internal/runstate"
	"github.com/discernus/discernus/pkg/pipeline"
)

// Runner drives a phased run: one saga step per pipeline phase, with every
// phase boundary recorded through the run-state tracker and provenance log.
// Because phase state is persisted after each phase, a crashed run can be
// resumed from the first incomplete phase without repeating finished work.
type Runner struct {
	engine      *Engine
	tracker     *runstate.Tracker
	provenance  *runstate.ProvenanceLog
	runID       string
	stepTimeout time.Duration
}

// NewRunner wires an engine to the persistent run state for one run.
func NewRunner(engine *Engine, tracker *runstate.Tracker, provenance *runstate.ProvenanceLog, runID string, stepTimeout time.Duration) (*Runner, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("tracker is required")
	}
	if provenance == nil {
		return nil, fmt.Errorf("provenance log is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}
	if stepTimeout <= 0 {
		return nil, fmt.Errorf("step timeout must be positive, got %v", stepTimeout)
	}

	return &Runner{
		engine:      engine,
		tracker:     tracker,
		provenance:  provenance,
		runID:       runID,
		stepTimeout: stepTimeout,
	}, nil
}

// Execute runs the phases from start through end inclusive, skipping any that
// are already complete. Each phase becomes one task whose payload is the
// previous phase's result artifact; the first executed phase receives
// initialPayload, or the carried-forward artifact of the last completed phase
// when resuming mid-pipeline.
func (r *Runner) Execute(ctx context.Context, initialPayload, start, end string) error {
	if !r.tracker.CanResumeFrom(start) {
		return fmt.Errorf("cannot start from phase %q: earlier phases are incomplete (completed: %v)",
			start, r.tracker.GetCompletedPhases())
	}

	remaining, err := r.tracker.GetRemainingPhases(start, end)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		log.Printf("[Runner] All phases %s..%s already complete, nothing to do", start, end)
		return nil
	}

	payload, err := r.carryForward(initialPayload, remaining[0])
	if err != nil {
		return err
	}

	for _, phase := range remaining {
		result, err := r.executePhase(ctx, phase, payload)
		if err != nil {
			return err
		}
		// Content addressing means the next phase can reference the result
		// without re-uploading it.
		payload = pipeline.HashPrefix + pipeline.HashBytes(result)
	}

	return nil
}

// carryForward chooses the first executed phase's input. When the phase
// immediately before it is already complete (a resume), its recorded artifact
// is reused and logged as copied provenance; otherwise initialPayload is the
// pipeline's entry input.
func (r *Runner) carryForward(initialPayload, firstPhase string) (string, error) {
	phases := r.tracker.Phases()
	idx := -1
	for i, p := range phases {
		if p == firstPhase {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return initialPayload, nil
	}

	prev := phases[idx-1]
	record, ok := r.tracker.GetPhaseRecord(prev)
	if !ok || !record.Completed || len(record.ArtifactHashes) == 0 {
		return initialPayload, nil
	}

	hash := record.ArtifactHashes[len(record.ArtifactHashes)-1]
	if err := r.provenance.AddArtifactCopied(hash); err != nil {
		return "", fmt.Errorf("recording inherited artifact: %w", err)
	}

	log.Printf("[Runner] Resuming at %s with artifact %s inherited from completed phase %s", firstPhase, hash, prev)
	return pipeline.HashPrefix + hash, nil
}

func (r *Runner) executePhase(ctx context.Context, phase, payload string) ([]byte, error) {
	if err := r.provenance.AddPhaseExecuted(phase); err != nil {
		return nil, err
	}
	if err := r.provenance.AddExecutionTimeline(phase, "started"); err != nil {
		return nil, err
	}

	result, err := r.engine.SubmitAndAwait(ctx, phase, payload, r.stepTimeout)
	if err != nil {
		if logErr := r.provenance.AddExecutionTimeline(phase, fmt.Sprintf("failed: %v", err)); logErr != nil {
			log.Printf("[Runner] WARNING: could not record failure of phase %s: %v", phase, logErr)
		}
		return nil, fmt.Errorf("phase %s: %w", phase, err)
	}

	hash := pipeline.HashBytes(result)
	if err := r.provenance.AddArtifactCreated(hash); err != nil {
		return nil, err
	}
	if err := r.tracker.MarkPhaseComplete(phase, r.runID, []string{hash}); err != nil {
		return nil, fmt.Errorf("phase %s succeeded but could not be recorded: %w", phase, err)
	}
	if err := r.provenance.AddPhaseCompleted(phase); err != nil {
		return nil, err
	}
	if err := r.provenance.AddExecutionTimeline(phase, "complete"); err != nil {
		return nil, err
	}

	log.Printf("[Runner] Phase %s complete, result %s", phase, hash)
	return result, nil
}
