// Package runstate persists per-run phase completion and provenance records
// to a run directory, making a multi-phase analysis run resumable after
// partial failure.
//
// The tracker is single-writer: exactly one process drives a given run
// directory. Concurrent writers to the same run are out of contract.
package runstate

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/discernus/discernus/pkg/pipeline"
)

const phaseStateFile = "phase_state.json"

// DefaultPhases is the standard ordered phase list for an analysis run.
func DefaultPhases() []string {
	return []string{"validation", "analysis", "statistical", "evidence", "synthesis"}
}

// PhaseRecord captures the completion state of one named phase.
type PhaseRecord struct {
	Completed      bool      `json:"completed"`
	Timestamp      time.Time `json:"timestamp"`
	RunID          string    `json:"run_id"`
	ArtifactHashes []string  `json:"artifact_hashes"`
}

// Tracker tracks which phases of a run have completed, persisted as a JSON
// document in the run directory. Phases form a fixed ordered list; a phase
// moves from incomplete to complete exactly once and is never un-completed.
type Tracker struct {
	runDir  string
	phases  []string
	state   map[string]*PhaseRecord
	corrupt bool
}

// NewTracker creates a tracker for runDir over the given ordered phase list.
// Existing phase state is loaded from disk. A missing state file means a
// fresh run; an unreadable or invalid one is treated as "nothing completed"
// with a loud warning (fail open for reads), but mutations are refused until
// Reset is called (fail closed for writes).
func NewTracker(runDir string, phases []string) (*Tracker, error) {
	if runDir == "" {
		return nil, fmt.Errorf("run directory cannot be empty")
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("phase list cannot be empty")
	}
	seen := make(map[string]bool, len(phases))
	for _, phase := range phases {
		if phase == "" {
			return nil, fmt.Errorf("phase name cannot be empty")
		}
		if seen[phase] {
			return nil, fmt.Errorf("duplicate phase name %q", phase)
		}
		seen[phase] = true
	}

	t := &Tracker{
		runDir: runDir,
		phases: phases,
		state:  make(map[string]*PhaseRecord),
	}

	path := t.statePath()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return t, nil // first run, nothing complete yet
	}
	if err != nil {
		log.Printf("[WARN] [RunState] Phase state file %s unreadable (%v) - treating as nothing completed; writes are blocked until the state is reset", path, err)
		t.corrupt = true
		return t, nil
	}

	var state map[string]*PhaseRecord
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[WARN] [RunState] Phase state file %s is corrupt (%v) - treating as nothing completed; writes are blocked until the state is reset", path, err)
		t.corrupt = true
		return t, nil
	}

	t.state = state
	if t.state == nil {
		t.state = make(map[string]*PhaseRecord)
	}
	return t, nil
}

// Phases returns the ordered phase list.
func (t *Tracker) Phases() []string {
	out := make([]string, len(t.phases))
	copy(out, t.phases)
	return out
}

// Corrupt reports whether the on-disk state was unreadable at load time.
// The operator must Reset (or start a new run directory) before any phase
// can be marked complete.
func (t *Tracker) Corrupt() bool {
	return t.corrupt
}

// MarkPhaseComplete records phase as complete with a timestamp and the
// artifacts it produced. This is the only mutator. Marking an
// already-complete phase again is a no-op (the original record wins).
//
// The tracker trusts its caller to complete phases in order; ordering is
// enforced by the resume-eligibility check, not here.
func (t *Tracker) MarkPhaseComplete(phase, runID string, artifactHashes []string) error {
	if t.corrupt {
		return &pipeline.CorruptStateError{
			Path: t.statePath(),
			Err:  fmt.Errorf("refusing to mark %q complete over unverifiable prior state", phase),
		}
	}
	if !t.knownPhase(phase) {
		return fmt.Errorf("unknown phase %q (expected one of %v)", phase, t.phases)
	}

	if existing, ok := t.state[phase]; ok && existing.Completed {
		return nil
	}

	hashes := make([]string, 0, len(artifactHashes))
	for _, h := range artifactHashes {
		hashes = append(hashes, pipeline.NormalizeHash(h))
	}

	t.state[phase] = &PhaseRecord{
		Completed:      true,
		Timestamp:      time.Now().UTC(),
		RunID:          runID,
		ArtifactHashes: hashes,
	}

	return t.save()
}

// GetCompletedPhases returns all completed phases in phase order.
func (t *Tracker) GetCompletedPhases() []string {
	var completed []string
	for _, phase := range t.phases {
		if t.IsPhaseComplete(phase) {
			completed = append(completed, phase)
		}
	}
	return completed
}

// IsPhaseComplete reports whether a single phase has completed.
func (t *Tracker) IsPhaseComplete(phase string) bool {
	record, ok := t.state[phase]
	return ok && record.Completed
}

// GetPhaseRecord returns the stored record for a phase, if any.
func (t *Tracker) GetPhaseRecord(phase string) (PhaseRecord, bool) {
	record, ok := t.state[phase]
	if !ok {
		return PhaseRecord{}, false
	}
	return *record, true
}

// CanResumeFrom reports whether a run may skip ahead to phase: true iff
// every phase strictly before it is complete. Unknown phases are never
// resumable.
func (t *Tracker) CanResumeFrom(phase string) bool {
	idx := t.phaseIndex(phase)
	if idx < 0 {
		return false
	}
	for _, earlier := range t.phases[:idx] {
		if !t.IsPhaseComplete(earlier) {
			return false
		}
	}
	return true
}

// GetRemainingPhases returns the subsequence of [start, end] that is not yet
// complete, in phase order. Callers use this to decide exactly which phases
// to (re)execute on resume.
func (t *Tracker) GetRemainingPhases(start, end string) ([]string, error) {
	startIdx := t.phaseIndex(start)
	if startIdx < 0 {
		return nil, fmt.Errorf("unknown phase %q", start)
	}
	endIdx := t.phaseIndex(end)
	if endIdx < 0 {
		return nil, fmt.Errorf("unknown phase %q", end)
	}
	if startIdx > endIdx {
		return nil, fmt.Errorf("phase %q comes after %q", start, end)
	}

	var remaining []string
	for _, phase := range t.phases[startIdx : endIdx+1] {
		if !t.IsPhaseComplete(phase) {
			remaining = append(remaining, phase)
		}
	}
	return remaining, nil
}

// Reset discards all phase state, on disk and in memory. This is the
// explicit operator escape hatch after a corrupt-state load.
func (t *Tracker) Reset() error {
	t.state = make(map[string]*PhaseRecord)
	t.corrupt = false
	return t.save()
}

func (t *Tracker) statePath() string {
	return filepath.Join(t.runDir, phaseStateFile)
}

func (t *Tracker) knownPhase(phase string) bool {
	return t.phaseIndex(phase) >= 0
}

func (t *Tracker) phaseIndex(phase string) int {
	for i, p := range t.phases {
		if p == phase {
			return i
		}
	}
	return -1
}

// save writes the phase state atomically (temp file + rename) so a crash
// mid-write never leaves a half-written document behind.
func (t *Tracker) save() error {
	if err := os.MkdirAll(t.runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal phase state: %w", err)
	}

	return atomicWrite(t.statePath(), data)
}

// atomicWrite writes data to path via a temp file in the same directory.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
