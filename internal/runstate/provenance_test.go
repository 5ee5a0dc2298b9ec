package runstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/discernus/discernus/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvenance(t *testing.T) {
	t.Run("creates and persists a fresh record", func(t *testing.T) {
		dir := t.TempDir()

		prov, err := NewProvenance(dir, "run-1", "", "")
		require.NoError(t, err)

		record := prov.Record()
		assert.Equal(t, "run-1", record.RunID)
		assert.Empty(t, record.SourceRun)
		assert.NotNil(t, record.ArtifactsCreated)
		assert.False(t, record.CreatedAt.IsZero())

		_, err = os.Stat(filepath.Join(dir, "provenance.json"))
		assert.NoError(t, err)
	})

	t.Run("records resume lineage", func(t *testing.T) {
		prov, err := NewProvenance(t.TempDir(), "run-2", "run-1", "statistical")
		require.NoError(t, err)

		record := prov.Record()
		assert.Equal(t, "run-1", record.SourceRun)
		assert.Equal(t, "statistical", record.ResumePoint)
	})

	t.Run("rejects empty run ID", func(t *testing.T) {
		_, err := NewProvenance(t.TempDir(), "", "", "")
		assert.Error(t, err)
	})
}

func TestProvenanceAppends(t *testing.T) {
	dir := t.TempDir()
	prov, err := NewProvenance(dir, "run-1", "", "")
	require.NoError(t, err)

	created := pipeline.HashBytes([]byte("analysis output"))
	copied := pipeline.HashBytes([]byte("inherited corpus"))

	require.NoError(t, prov.AddArtifactCopied("sha256:"+copied))
	require.NoError(t, prov.AddArtifactCreated(created))
	require.NoError(t, prov.AddPhaseExecuted("analysis"))
	require.NoError(t, prov.AddPhaseCompleted("analysis"))
	require.NoError(t, prov.AddExecutionTimeline("analysis", "phase complete"))

	// Reload from disk and verify every append survived.
	reloaded, err := LoadProvenance(dir)
	require.NoError(t, err)

	record := reloaded.Record()
	assert.Equal(t, []string{copied}, record.ArtifactsCopied, "hashes are stored normalized")
	assert.Equal(t, []string{created}, record.ArtifactsCreated)
	assert.Equal(t, []string{"analysis"}, record.PhasesExecuted)
	assert.Equal(t, []string{"analysis"}, record.PhasesCompleted)
	require.Len(t, record.ExecutionTimeline, 1)
	assert.Equal(t, "analysis", record.ExecutionTimeline[0].Phase)
	assert.Equal(t, "phase complete", record.ExecutionTimeline[0].Event)

	latest, ok := reloaded.LatestTimelineEntry()
	require.True(t, ok)
	assert.Equal(t, "phase complete", latest.Event)
}

func TestLoadProvenance(t *testing.T) {
	t.Run("missing file is a corrupt-state error", func(t *testing.T) {
		_, err := LoadProvenance(t.TempDir())
		require.Error(t, err)
		assert.True(t, pipeline.IsCorruptState(err))
	})

	t.Run("invalid JSON is a corrupt-state error", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "provenance.json"), []byte("{broken"), 0o644))

		_, err := LoadProvenance(dir)
		require.Error(t, err)
		assert.True(t, pipeline.IsCorruptState(err))
	})
}
