package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"
)

const (
	// toolExecutionTimeout is the maximum time a tool can run before being killed
	toolExecutionTimeout = 5 * time.Minute

	// maxOutputSize is the maximum number of bytes captured from tool stdout/stderr (10MB)
	maxOutputSize = 10 * 1024 * 1024
)

// executeTool runs the agent command as a subprocess with timeout and output limits.
//
// The subprocess is:
//   - Given a 5-minute timeout via context
//   - Fed the resolved task payload via stdin (pipe closed after write)
//   - Output captured with a 10MB limit on stdout and stderr
//
// Returns (exitCode, stdout, stderr, error) where:
//   - exitCode is the process exit code (0 = success, non-zero = failure, -1 = couldn't start)
//   - stdout is the captured standard output (truncated at 10MB)
//   - stderr is the captured standard error (truncated at 10MB)
//   - error is non-nil if the process failed to start, exited non-zero, or timed out
func executeTool(ctx context.Context, command []string, input []byte) (int, []byte, string, error) {
	if len(command) == 0 {
		return -1, nil, "", fmt.Errorf("tool command is empty")
	}

	execCtx, cancel := context.WithTimeout(ctx, toolExecutionTimeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, command[0], command[1:]...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return -1, nil, "", fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	cmd.Stdout = &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	if err := cmd.Start(); err != nil {
		return -1, nil, "", fmt.Errorf("failed to start tool: %w", err)
	}

	// Feed input and close the pipe so tools reading to EOF can proceed.
	if _, err := stdinPipe.Write(input); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return -1, nil, "", fmt.Errorf("failed to write tool input: %w", err)
	}
	stdinPipe.Close()

	err = cmd.Wait()

	if execCtx.Err() == context.DeadlineExceeded {
		return -1, stdoutBuf.Bytes(), stderrBuf.String(),
			fmt.Errorf("tool timed out after %v", toolExecutionTimeout)
	}

	exitCode := cmd.ProcessState.ExitCode()
	if err != nil {
		return exitCode, stdoutBuf.Bytes(), stderrBuf.String(),
			fmt.Errorf("tool exited with code %d: %w", exitCode, err)
	}

	return exitCode, stdoutBuf.Bytes(), stderrBuf.String(), nil
}

// limitedWriter writes to w until limit bytes have been written, then
// silently discards. Truncation beats failing a long-running tool over a
// chatty stderr.
type limitedWriter struct {
	w       io.Writer
	limit   int64
	written int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		if _, err := lw.w.Write(p[:remaining]); err != nil {
			return 0, err
		}
		lw.written = lw.limit
		return len(p), nil
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}
