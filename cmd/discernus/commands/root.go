package commands

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/discernus/discernus/internal/config"
	"github.com/discernus/discernus/internal/printer"
	"github.com/discernus/discernus/pkg/pipeline"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "discernus",
	Short: "Discernus - Redis-backed pipeline orchestration substrate",
	Long: `Discernus coordinates multi-phase analysis pipelines over Redis:
content-addressed artifact storage, reliable task queues with consumer
groups, and crash-resumable phased runs with full provenance.

Tasks are routed to subprocess or container workers; every result is
stored by its SHA-256 content hash, so repeated work is deduplicated
and resumed runs can inherit finished phases verbatim.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "discernus.yml", "Path to the instance configuration file")
}

// loadConfig reads the configuration named by the global --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, printer.Error(
			"could not load configuration",
			err.Error(),
			[]string{fmt.Sprintf("Check that %s exists and is valid YAML", configPath)},
		)
	}
	return cfg, nil
}

// connectClient opens a pipeline client for the configured instance.
func connectClient(cfg *config.Config) (*pipeline.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, printer.ErrorWithContext(
			"invalid Redis URL",
			err.Error(),
			map[string]string{"redis_url": cfg.RedisURL},
			[]string{"Use a URL of the form redis://host:port/db"},
		)
	}

	client, err := pipeline.NewClient(opts, cfg.Instance)
	if err != nil {
		return nil, err
	}
	return client, nil
}
