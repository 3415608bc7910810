package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"api-retriever/internal/chain"
	"api-retriever/internal/config"
	"api-retriever/internal/logging"
	"api-retriever/internal/shaper"
	"api-retriever/internal/util"
)

// RowProcessor runs one input row's full request chain. Satisfied by
// *chain.Runner.
type RowProcessor interface {
	ProcessRow(ctx context.Context, row map[string]string) ([]shaper.Record, error)
}

// RecordWriter appends finished output rows. Satisfied by *csvio.Writer.
type RecordWriter interface {
	WriteRecords(records []map[string]string) error
}

// Options configures a batch run.
type Options struct {
	// Processors is the worker pool, one entry per available secret
	// (minimum one). Each processor is driven by exactly one worker.
	Processors []RowProcessor
	Writer     RecordWriter
	// ChunkSize is the flush/checkpoint interval in input rows.
	ChunkSize int
	// StartRow resumes a previous run at the given input row index.
	StartRow int
	// RowsWritten carries the cumulative count from a loaded checkpoint.
	RowsWritten    int
	CheckpointPath string
}

// Summary reports what a run accomplished.
type Summary struct {
	RunID          string
	RowsProcessed  int
	RowsFailed     int
	RecordsWritten int
}

// Coordinator iterates input rows, fans them out to chain workers, and
// re-orders completed results into input order for chunked, checkpointed
// emission.
type Coordinator struct {
	cfg  *config.PipelineConfig
	opts Options
}

// NewCoordinator creates a coordinator for one pipeline run.
func NewCoordinator(cfg *config.PipelineConfig, opts Options) *Coordinator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 50
	}
	return &Coordinator{cfg: cfg, opts: opts}
}

// Deduplicate removes rows whose full input-field value set was already
// seen, preserving first-seen order.
func Deduplicate(rows []map[string]string, inputParams []string) []map[string]string {
	seen := make(map[string]bool, len(rows))
	deduped := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		key := util.RowKey(inputParams, row)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, row)
	}
	return deduped
}

type job struct {
	index int
	row   map[string]string
}

type rowResult struct {
	index   int
	row     map[string]string
	records []shaper.Record
	err     error
}

// Run processes rows[StartRow:] through the worker pool. Row-level
// failures are logged and skipped; only checkpoint or output write
// failures abort the run, and they also stop dispatch of the remaining
// rows. On cancellation, in-flight rows finish and the last contiguous
// stretch of rows completed before the interrupt is flushed and
// checkpointed; rows the cancellation cut short stay ahead of the
// checkpoint so a resumed run processes them.
func (c *Coordinator) Run(ctx context.Context, rows []map[string]string) (Summary, error) {
	if c.cfg.IgnoreInputDuplicates {
		before := len(rows)
		rows = Deduplicate(rows, c.cfg.InputParameters)
		if dropped := before - len(rows); dropped > 0 {
			logging.Logf(logging.Info, "Ignored %d duplicate input rows", dropped)
		}
	}

	summary := Summary{RunID: uuid.NewString(), RecordsWritten: c.opts.RowsWritten}
	total := len(rows)
	start := c.opts.StartRow
	if start < 0 {
		start = 0
	}
	if start >= total {
		logging.Logf(logging.Info, "Nothing to process: start row %d, %d input rows", start, total)
		return summary, nil
	}
	logging.Logf(logging.Info, "Run %s: processing rows %d..%d with %d workers (chunk size %d)",
		summary.RunID, start, total-1, len(c.opts.Processors), c.opts.ChunkSize)

	// The run-scoped context also stops dispatch when a fatal write error
	// halts the run, not just on external cancellation.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	jobs := make(chan job)
	results := make(chan rowResult)

	// Producer. Stops dispatching when the run ends; in-flight rows finish.
	go func() {
		defer close(jobs)
		for idx := start; idx < total; idx++ {
			if runCtx.Err() != nil {
				return
			}
			select {
			case jobs <- job{index: idx, row: rows[idx]}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for _, proc := range c.opts.Processors {
		wg.Add(1)
		go func(p RowProcessor) {
			defer wg.Done()
			for j := range jobs {
				records, err := p.ProcessRow(runCtx, j.row)
				results <- rowResult{index: j.index, row: j.row, records: records, err: err}
			}
		}(proc)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collector: re-order completed rows into input order, flush every
	// ChunkSize rows. Single goroutine, so the output buffer and
	// checkpoint counter have one serialization point.
	pending := make(map[int]rowResult)
	var buffer []map[string]string
	next := start
	lastCheckpointed := start

	flush := func() error {
		if len(buffer) > 0 {
			if err := c.opts.Writer.WriteRecords(buffer); err != nil {
				return fmt.Errorf("writing output chunk ending at row %d: %w", next, err)
			}
			summary.RecordsWritten += len(buffer)
			buffer = nil
		}
		cp := Checkpoint{RunID: summary.RunID, NextRow: next, RowsWritten: summary.RecordsWritten}
		if c.opts.CheckpointPath != "" {
			if err := cp.write(c.opts.CheckpointPath); err != nil {
				return err
			}
		}
		logging.Logf(logging.Debug, "Checkpoint: next row %d, %d records written", next, summary.RecordsWritten)
		lastCheckpointed = next
		return nil
	}

	var fatalErr error
	interrupted := false
	for res := range results {
		if fatalErr != nil || interrupted {
			continue // drain remaining workers; next no longer advances
		}
		pending[res.index] = res
		for {
			current, ok := pending[next]
			if !ok {
				break
			}
			// A row that failed with the run's own cancellation was never
			// fetched. It must not advance next: the checkpoint may only
			// cover rows that actually completed, so the resumed run picks
			// this row up again instead of skipping it.
			if current.err != nil && ctx.Err() != nil && errors.Is(current.err, ctx.Err()) {
				interrupted = true
				break
			}
			delete(pending, next)
			summary.RowsProcessed++
			if current.err != nil {
				summary.RowsFailed++
				logging.Logf(logging.Error, "Row %d %s failed: %v",
					current.index, chain.RowIdentity(c.cfg.InputParameters, current.row), current.err)
			} else {
				for _, rec := range current.records {
					buffer = append(buffer, rec.Row())
				}
			}
			next++
			if next-lastCheckpointed >= c.opts.ChunkSize {
				if err := flush(); err != nil {
					fatalErr = err
					cancelRun()
					break
				}
			}
		}
	}

	if fatalErr != nil {
		logging.Logf(logging.Error, "Run %s halted: %v (last good checkpoint: row %d)",
			summary.RunID, fatalErr, lastCheckpointed)
		return summary, fatalErr
	}

	// Flush the trailing partial chunk of contiguous completed rows.
	if next > lastCheckpointed {
		if err := flush(); err != nil {
			return summary, err
		}
	}

	if err := ctx.Err(); err != nil {
		logging.Logf(logging.Warning, "Run %s interrupted after row %d", summary.RunID, next-1)
		return summary, err
	}
	return summary, nil
}
