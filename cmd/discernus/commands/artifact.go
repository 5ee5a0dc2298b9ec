package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/discernus/discernus/internal/printer"
	"github.com/discernus/discernus/pkg/pipeline"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Inspect and manage the content-addressed artifact store",
}

var artifactPutCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Store content and print its hash",
	Long: `Store content in the artifact store and print its content hash.

Reads from the named file, or from stdin when no file is given. Storing
the same content twice is a no-op: the store is keyed by SHA-256, so the
same bytes always yield the same hash.

Examples:
  discernus artifact put corpus.json
  cat corpus.json | discernus artifact put`,
	Args: cobra.MaximumNArgs(1),
	RunE: runArtifactPut,
}

var artifactGetCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Print an artifact's content to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactGet,
}

var artifactExistsCmd = &cobra.Command{
	Use:   "exists <hash>",
	Short: "Check whether an artifact is stored",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactExists,
}

var artifactDeleteCmd = &cobra.Command{
	Use:   "delete <hash>",
	Short: "Delete an artifact (breaks immutability - administrative use only)",
	Long: `Delete an artifact from the store.

Artifacts are normally immutable; deletion exists for storage reclamation
and data-handling obligations. Any phase record or provenance entry that
references the hash will dangle afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runArtifactDelete,
}

func init() {
	artifactCmd.AddCommand(artifactPutCmd)
	artifactCmd.AddCommand(artifactGetCmd)
	artifactCmd.AddCommand(artifactExistsCmd)
	artifactCmd.AddCommand(artifactDeleteCmd)
	rootCmd.AddCommand(artifactCmd)
}

func artifactClient() (*pipeline.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return connectClient(cfg)
}

func runArtifactPut(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	client, err := artifactClient()
	if err != nil {
		return err
	}
	defer client.Close()

	hash, err := client.PutArtifact(context.Background(), data)
	if err != nil {
		return err
	}

	fmt.Printf("%s%s\n", pipeline.HashPrefix, hash)
	return nil
}

func runArtifactGet(cmd *cobra.Command, args []string) error {
	client, err := artifactClient()
	if err != nil {
		return err
	}
	defer client.Close()

	data, err := client.GetArtifact(context.Background(), args[0])
	if err != nil {
		if pipeline.IsNotFound(err) {
			return printer.Error(
				"artifact not found",
				fmt.Sprintf("No artifact stored under %s.", args[0]),
				[]string{"Check the hash, or list the run's provenance for the hashes it created"},
			)
		}
		return err
	}

	os.Stdout.Write(data)
	return nil
}

func runArtifactExists(cmd *cobra.Command, args []string) error {
	client, err := artifactClient()
	if err != nil {
		return err
	}
	defer client.Close()

	exists, err := client.ArtifactExists(context.Background(), args[0])
	if err != nil {
		return err
	}

	if !exists {
		printer.Info("absent\n")
		os.Exit(1)
	}
	printer.Info("present\n")
	return nil
}

func runArtifactDelete(cmd *cobra.Command, args []string) error {
	client, err := artifactClient()
	if err != nil {
		return err
	}
	defer client.Close()

	deleted, err := client.DeleteArtifact(context.Background(), args[0])
	if err != nil {
		return err
	}

	if !deleted {
		printer.Info("Nothing to delete: %s was not stored\n", args[0])
		return nil
	}
	printer.Warning("Deleted %s; any references to it now dangle\n", args[0])
	return nil
}
