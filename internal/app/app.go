package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"unicode/utf8"

	"api-retriever/internal/batch"
	"api-retriever/internal/callback"
	"api-retriever/internal/chain"
	"api-retriever/internal/config"
	"api-retriever/internal/csvio"
	"api-retriever/internal/executor"
	"api-retriever/internal/httpclient"
	"api-retriever/internal/logging"
)

// Common application-layer errors.
var (
	ErrUsage          = errors.New("usage error")
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrMissingArgs    = errors.New("missing required arguments")
)

// configLoader defines the interface for loading configuration.
type configLoader interface {
	Load(filename string, opts config.LoadOptions) (*config.PipelineConfig, error)
}

type defaultConfigLoader struct{}

func (l *defaultConfigLoader) Load(filename string, opts config.LoadOptions) (*config.PipelineConfig, error) {
	return config.LoadConfig(filename, opts)
}

// AppRunner wires configuration, the callback registry, and the batch
// coordinator together.
type AppRunner struct {
	configLoader configLoader
	registry     *callback.Registry
}

// AppRunnerOpts allows injecting dependencies for tests or embedding.
type AppRunnerOpts struct {
	ConfigLoader configLoader
	Registry     *callback.Registry
}

// NewAppRunner creates an application runner with default dependencies.
func NewAppRunner() *AppRunner {
	return NewAppRunnerWithOpts(AppRunnerOpts{})
}

// NewAppRunnerWithOpts creates an AppRunner with injected dependencies.
func NewAppRunnerWithOpts(opts AppRunnerOpts) *AppRunner {
	loader := opts.ConfigLoader
	if loader == nil {
		loader = &defaultConfigLoader{}
	}
	registry := opts.Registry
	if registry == nil {
		registry = callback.NewRegistry()
	}
	return &AppRunner{configLoader: loader, registry: registry}
}

const usageText = `Usage:
  api-retriever [options]

Options:
  -input string
        CSV file with input parameters, one row per entity (required)
  -output-dir string
        Directory for the output table and checkpoint (required)
  -config string
        YAML pipeline configuration file (required)
  -config-dir string
        Directory with auxiliary configuration files for chained_request_ref
  -delimiter string
        Field delimiter for input and output tables (default ",")
  -start-row int
        Input row index to resume from (default 0)
  -chunk-size int
        Rows per output flush/checkpoint (default 50)
  -loglevel string
        Logging level (none, error, warn, info, debug) (default "info")
  -help
        Show help

Example:
  api-retriever -config=gh_repo_license.yaml -input=repos.csv -output-dir=out -loglevel=debug
`

// Usage prints the command-line help information to the specified writer.
func (a *AppRunner) Usage(writer io.Writer) {
	fmt.Fprint(writer, usageText)
}

// Run parses command-line arguments and executes the batch pipeline.
func (a *AppRunner) Run(args []string) error {
	fs := flag.NewFlagSet("api-retriever", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	inputFile := fs.String("input", "", "CSV file with input parameters")
	outputDir := fs.String("output-dir", "", "Directory for output table and checkpoint")
	configFile := fs.String("config", "", "YAML pipeline configuration file")
	configDir := fs.String("config-dir", "", "Directory with auxiliary configuration files")
	delimiter := fs.String("delimiter", ",", "Field delimiter")
	startRow := fs.Int("start-row", 0, "Input row index to resume from")
	chunkSize := fs.Int("chunk-size", 50, "Rows per output flush/checkpoint")
	logLevelStr := fs.String("loglevel", "info", "Logging level")
	helpFlag := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			a.Usage(os.Stderr)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *helpFlag {
		a.Usage(os.Stderr)
		return nil
	}

	logging.SetupLogging(*logLevelStr)

	if *inputFile == "" || *outputDir == "" || *configFile == "" {
		logging.Logf(logging.Error, "-input, -output-dir and -config are required.")
		return ErrMissingArgs
	}
	if utf8.RuneCountInString(*delimiter) != 1 {
		return fmt.Errorf("%w: -delimiter must be a single character, got '%s'", ErrUsage, *delimiter)
	}
	delimiterRune, _ := utf8.DecodeRuneInString(*delimiter)
	if *startRow < 0 {
		return fmt.Errorf("%w: -start-row cannot be negative", ErrUsage)
	}
	if *chunkSize < 1 {
		return fmt.Errorf("%w: -chunk-size must be at least 1", ErrUsage)
	}

	if _, err := os.Stat(*configFile); err != nil {
		if os.IsNotExist(err) {
			logging.Logf(logging.Error, "Configuration file '%s' not found.", *configFile)
			return ErrConfigNotFound
		}
		return fmt.Errorf("failed to stat config file '%s': %w", *configFile, err)
	}

	cfg, err := a.configLoader.Load(*configFile, config.LoadOptions{
		ConfigDir:         *configDir,
		KnownPreCallback:  a.registry.KnowsPre,
		KnownPostCallback: a.registry.KnowsPost,
	})
	if err != nil {
		logging.Logf(logging.Error, "Error loading configuration '%s': %v", *configFile, err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.runBatch(ctx, cfg, *inputFile, *outputDir, delimiterRune, *startRow, *chunkSize)
}

// runBatch reads the input table, builds the per-secret worker pool, and
// drives the batch coordinator.
func (a *AppRunner) runBatch(ctx context.Context, cfg *config.PipelineConfig, inputFile, outputDir string, delimiter rune, startRow, chunkSize int) error {
	rows, err := csvio.ReadInput(inputFile, delimiter, cfg.InputParameters)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory '%s': %w", outputDir, err)
	}
	outputPath := filepath.Join(outputDir, cfg.Name+".csv")
	checkpointPath := filepath.Join(outputDir, cfg.Name+".checkpoint.json")

	rowsWritten := 0
	appendMode := false
	if startRow > 0 {
		if _, statErr := os.Stat(outputPath); statErr == nil {
			appendMode = true
		}
		cp, cpErr := batch.LoadCheckpoint(checkpointPath)
		if cpErr != nil {
			return cpErr
		}
		if cp != nil {
			rowsWritten = cp.RowsWritten
			if cp.NextRow != startRow {
				logging.Logf(logging.Warning, "Checkpoint expects resumption at row %d, -start-row is %d", cp.NextRow, startRow)
			}
		}
	}

	writer, err := csvio.NewWriter(outputPath, delimiter, cfg.OutputColumns(), appendMode)
	if err != nil {
		return err
	}
	defer writer.Close()

	client, err := httpclient.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create HTTP client: %w", err)
	}

	// One worker per secret, each with its own executor so pacing state is
	// never shared. With no secrets configured, a single unkeyed worker.
	secrets := cfg.APIKeys
	if len(secrets) == 0 {
		secrets = []string{""}
	}
	processors := make([]batch.RowProcessor, 0, len(secrets))
	for _, secret := range secrets {
		exec := executor.New(client, cfg.Retry, cfg.Delay)
		runner, runnerErr := chain.NewRunner(cfg, exec, a.registry, secret)
		if runnerErr != nil {
			return runnerErr
		}
		processors = append(processors, runner)
	}

	coordinator := batch.NewCoordinator(cfg, batch.Options{
		Processors:     processors,
		Writer:         writer,
		ChunkSize:      chunkSize,
		StartRow:       startRow,
		RowsWritten:    rowsWritten,
		CheckpointPath: checkpointPath,
	})

	summary, err := coordinator.Run(ctx, rows)
	logging.Logf(logging.Info, "Run %s: %d rows processed, %d failed, %d records written to %s",
		summary.RunID, summary.RowsProcessed, summary.RowsFailed, summary.RecordsWritten, outputPath)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logging.Logf(logging.Warning, "Run interrupted; resume with -start-row from the checkpoint at %s", checkpointPath)
		}
		return err
	}
	return nil
}
