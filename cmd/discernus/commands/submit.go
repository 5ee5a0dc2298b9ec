package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/discernus/discernus/internal/orchestrator"
	"github.com/discernus/discernus/internal/printer"
	"github.com/discernus/discernus/pkg/pipeline"
)

var (
	submitType    string
	submitPayload string
	submitWait    bool
	submitTimeout time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single task to the pipeline",
	Long: `Submit one task to the task stream.

The payload is either inline content or an artifact reference of the
form "sha256:<hash>" pointing at previously stored content. With --wait
the command blocks until the task's completion appears and prints the
result artifact to stdout.

Examples:
  # Fire and forget
  discernus submit --type analysis --payload '{"corpus":"q3"}'

  # Reference a stored artifact and wait for the result
  discernus submit --type synthesis --payload sha256:ab12... --wait --timeout 10m`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "", "Task type (required, must match a configured worker)")
	submitCmd.Flags().StringVarP(&submitPayload, "payload", "p", "", "Task payload: inline content or sha256:<hash> reference")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Block until the task completes and print its result")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 5*time.Minute, "How long to wait with --wait")
	submitCmd.MarkFlagRequired("type")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client, err := connectClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	if !submitWait {
		taskID, err := client.Enqueue(ctx, submitType, submitPayload)
		if err != nil {
			return err
		}
		printer.Success("Task %s enqueued (type %q)\n", taskID, submitType)
		return nil
	}

	engine, err := orchestrator.NewEngine(client, cfg.Orchestrator.PollIntervalDuration())
	if err != nil {
		return err
	}

	result, err := engine.SubmitAndAwait(ctx, submitType, submitPayload, submitTimeout)
	if err != nil {
		if pipeline.IsTimeout(err) {
			return printer.Error(
				"timed out waiting for task completion",
				fmt.Sprintf("No completion arrived within %v. The worker may still be running; its result will be stored when it finishes.", submitTimeout),
				[]string{"Check router and worker logs", "Retry with a longer --timeout"},
			)
		}
		return err
	}

	os.Stdout.Write(result)
	return nil
}
