package printer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		err := Error("Redis unreachable", "Could not connect to the broker", []string{})
		require.Error(t, err)
		require.Equal(t, "Redis unreachable", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		err := Error("Redis unreachable", "Could not connect to the broker", []string{"Check that Redis is running"})
		require.Error(t, err)
		require.Equal(t, "Redis unreachable", err.Error())
	})

	t.Run("returns error with title for multiple suggestions", func(t *testing.T) {
		err := Error("Run state corrupt", "phase_state.json is unreadable", []string{
			"Reset the run state with 'discernus run --reset'",
			"Start a fresh run directory",
		})
		require.Error(t, err)
		require.Equal(t, "Run state corrupt", err.Error())
	})
}

func TestErrorWithContext(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		context := map[string]string{
			"Run directory": "/path/to/run",
			"Instance":      "test-instance",
		}
		err := ErrorWithContext("Phase failed", "The analysis task did not complete", context, []string{})
		require.Error(t, err)
		require.Equal(t, "Phase failed", err.Error())
	})

	t.Run("returns error with title when including suggestions", func(t *testing.T) {
		context := map[string]string{"Task ID": "1700000000000-0"}
		err := ErrorWithContext("Phase failed", "The analysis task did not complete", context, []string{"Resubmit the phase"})
		require.Error(t, err)
		require.Equal(t, "Phase failed", err.Error())
	})
}

// Note: Error and ErrorWithContext print formatted output to stderr with
// colors. The returned error only carries the title for Cobra's error
// handling, which avoids duplicate output.
