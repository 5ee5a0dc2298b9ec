package worker

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteTool(t *testing.T) {
	ctx := context.Background()

	t.Run("pipes stdin to stdout", func(t *testing.T) {
		exitCode, stdout, stderr, err := executeTool(ctx, []string{"cat"}, []byte("analysis input"))
		require.NoError(t, err)
		assert.Zero(t, exitCode)
		assert.Equal(t, []byte("analysis input"), stdout)
		assert.Empty(t, stderr)
	})

	t.Run("captures stderr separately", func(t *testing.T) {
		_, stdout, stderr, err := executeTool(ctx,
			[]string{"sh", "-c", "echo result; echo diagnostics >&2"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "result\n", string(stdout))
		assert.Equal(t, "diagnostics\n", stderr)
	})

	t.Run("reports non-zero exit codes", func(t *testing.T) {
		exitCode, _, _, err := executeTool(ctx, []string{"sh", "-c", "exit 3"}, nil)
		require.Error(t, err)
		assert.Equal(t, 3, exitCode)
		assert.Contains(t, err.Error(), "exited with code 3")
	})

	t.Run("fails on unstartable command", func(t *testing.T) {
		exitCode, _, _, err := executeTool(ctx, []string{"/no/such/tool"}, nil)
		require.Error(t, err)
		assert.Equal(t, -1, exitCode)
	})

	t.Run("rejects empty command", func(t *testing.T) {
		_, _, _, err := executeTool(ctx, nil, nil)
		assert.Error(t, err)
	})
}

func TestLimitedWriter(t *testing.T) {
	t.Run("truncates at the limit without erroring", func(t *testing.T) {
		buf := &bytes.Buffer{}
		lw := &limitedWriter{w: buf, limit: 10}

		n, err := lw.Write([]byte(strings.Repeat("x", 25)))
		require.NoError(t, err)
		assert.Equal(t, 25, n, "writer must report full consumption to keep the pipe flowing")
		assert.Equal(t, 10, buf.Len())

		// Further writes are swallowed entirely.
		n, err = lw.Write([]byte("more"))
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		assert.Equal(t, 10, buf.Len())
	})

	t.Run("passes through under the limit", func(t *testing.T) {
		buf := &bytes.Buffer{}
		lw := &limitedWriter{w: buf, limit: 100}

		_, err := lw.Write([]byte("short"))
		require.NoError(t, err)
		assert.Equal(t, "short", buf.String())
	})
}
