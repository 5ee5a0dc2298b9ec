package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/discernus/discernus/pkg/pipeline"
)

const provenanceFile = "provenance.json"

// TimelineEntry is one event in a run's execution timeline.
type TimelineEntry struct {
	Phase     string    `json:"phase"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// Provenance is the audit trail for one run. Lists are append-only; the
// record is created once at run start and amended throughout the run's life,
// never deleted.
type Provenance struct {
	RunID             string          `json:"run_id"`
	SourceRun         string          `json:"source_run,omitempty"`
	ResumePoint       string          `json:"resume_point,omitempty"`
	PhasesCompleted   []string        `json:"phases_completed"`
	PhasesExecuted    []string        `json:"phases_executed"`
	ArtifactsCopied   []string        `json:"artifacts_copied"`
	ArtifactsCreated  []string        `json:"artifacts_created"`
	ExecutionTimeline []TimelineEntry `json:"execution_timeline"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ProvenanceLog owns the provenance record for one run directory and
// persists every amendment. Like the tracker, it is single-writer.
type ProvenanceLog struct {
	runDir string
	record *Provenance
}

// NewProvenance creates a fresh provenance record for a run and writes it to
// the run directory. sourceRun and resumePoint are empty for a from-scratch
// run and set when resuming from a prior run's state.
func NewProvenance(runDir, runID, sourceRun, resumePoint string) (*ProvenanceLog, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}

	p := &ProvenanceLog{
		runDir: runDir,
		record: &Provenance{
			RunID:             runID,
			SourceRun:         sourceRun,
			ResumePoint:       resumePoint,
			PhasesCompleted:   []string{},
			PhasesExecuted:    []string{},
			ArtifactsCopied:   []string{},
			ArtifactsCreated:  []string{},
			ExecutionTimeline: []TimelineEntry{},
			CreatedAt:         time.Now().UTC(),
		},
	}

	if err := p.save(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProvenance reads an existing provenance record from a run directory.
// Unlike phase state, a corrupt provenance file is an error: there is no
// safe "redo everything" interpretation of a broken audit trail.
func LoadProvenance(runDir string) (*ProvenanceLog, error) {
	path := filepath.Join(runDir, provenanceFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &pipeline.CorruptStateError{Path: path, Err: err}
	}

	var record Provenance
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, &pipeline.CorruptStateError{Path: path, Err: err}
	}

	return &ProvenanceLog{runDir: runDir, record: &record}, nil
}

// Record returns a copy of the current provenance record.
func (p *ProvenanceLog) Record() Provenance {
	return *p.record
}

// AddArtifactCopied appends a hash to the copied-artifacts list.
// Used when a resumed run carries artifacts forward from its source run.
func (p *ProvenanceLog) AddArtifactCopied(hash string) error {
	p.record.ArtifactsCopied = append(p.record.ArtifactsCopied, pipeline.NormalizeHash(hash))
	return p.save()
}

// AddArtifactCreated appends a hash to the created-artifacts list.
func (p *ProvenanceLog) AddArtifactCreated(hash string) error {
	p.record.ArtifactsCreated = append(p.record.ArtifactsCreated, pipeline.NormalizeHash(hash))
	return p.save()
}

// AddExecutionTimeline appends a timestamped event for a phase.
func (p *ProvenanceLog) AddExecutionTimeline(phase, event string) error {
	p.record.ExecutionTimeline = append(p.record.ExecutionTimeline, TimelineEntry{
		Phase:     phase,
		Event:     event,
		Timestamp: time.Now().UTC(),
	})
	return p.save()
}

// AddPhaseExecuted records that a phase was actually executed by this run
// (as opposed to inherited complete from a source run).
func (p *ProvenanceLog) AddPhaseExecuted(phase string) error {
	p.record.PhasesExecuted = append(p.record.PhasesExecuted, phase)
	return p.save()
}

// AddPhaseCompleted records that a phase reached completion during this run.
func (p *ProvenanceLog) AddPhaseCompleted(phase string) error {
	p.record.PhasesCompleted = append(p.record.PhasesCompleted, phase)
	return p.save()
}

// LatestTimelineEntry returns the most recent timeline event, if any.
func (p *ProvenanceLog) LatestTimelineEntry() (TimelineEntry, bool) {
	if len(p.record.ExecutionTimeline) == 0 {
		return TimelineEntry{}, false
	}
	return p.record.ExecutionTimeline[len(p.record.ExecutionTimeline)-1], true
}

func (p *ProvenanceLog) save() error {
	if err := os.MkdirAll(p.runDir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	data, err := json.MarshalIndent(p.record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal provenance: %w", err)
	}

	return atomicWrite(filepath.Join(p.runDir, provenanceFile), data)
}
