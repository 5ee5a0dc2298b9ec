package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Step is one stage of a sequential saga. Build receives the previous step's
// result bytes (nil for the first step) and produces the task payload - either
// inline content or an artifact reference the worker will resolve.
type Step struct {
	Type  string
	Build func(prev []byte) (string, error)
}

// RunSaga executes steps strictly in order, feeding each step's result into
// the next step's Build. Any failure - build error, task failure, timeout -
// aborts the saga immediately; completed steps are not rolled back, their
// artifacts remain in the store.
//
// Returns the final step's result bytes.
func (e *Engine) RunSaga(ctx context.Context, steps []Step, stepTimeout time.Duration) ([]byte, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("saga has no steps")
	}

	var prev []byte
	for i, step := range steps {
		if step.Type == "" {
			return nil, fmt.Errorf("saga step %d has no task type", i)
		}

		payload := ""
		if step.Build != nil {
			built, err := step.Build(prev)
			if err != nil {
				return nil, fmt.Errorf("saga step %d (%s): building payload: %w", i, step.Type, err)
			}
			payload = built
		}

		result, err := e.SubmitAndAwait(ctx, step.Type, payload, stepTimeout)
		if err != nil {
			return nil, fmt.Errorf("saga step %d (%s): %w", i, step.Type, err)
		}

		log.Printf("[Orchestrator] Saga step %d (%s) complete (%d bytes)", i, step.Type, len(result))
		prev = result
	}

	return prev, nil
}
