// Package batch dispatches one address lookup per input row under bounded
// concurrency and assembles the result table. One row's failure never aborts
// the batch; every input row appears exactly once in the output, labeled
// either with coordinates or with the reason it could not be resolved.
package batch

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kmaps-dev/geobatch/internal/crs"
	"github.com/kmaps-dev/geobatch/internal/table"
	"github.com/kmaps-dev/geobatch/pkg/vworld"
)

const defaultConcurrency = 10

// ReasonNoValue labels rows whose address cell is blank. Such rows skip the
// resolver entirely, saving the network round-trip.
const ReasonNoValue = "no value supplied"

// Runner runs one batch geocoding pass.
type Runner struct {
	Resolver    vworld.Client
	Transformer *crs.Transformer
	Concurrency int

	// OnProgress, if set, is called after each row completes with the
	// number of completed rows and the total. Calls are serialized through
	// a single collector, so the callback needs no locking of its own.
	OnProgress func(done, total int)
}

// ResultRow is one input row merged with its lookup outcome. The invariant:
// Found is true iff Lat/Lng/TMX/TMY are populated and Err is empty; Found is
// false iff Err is non-empty and the coordinate fields are zero.
type ResultRow struct {
	Index  int
	Values []string

	Found bool
	Level string
	Err   string
	Lat   float64
	Lng   float64
	TMX   float64
	TMY   float64
}

// Result is the terminal artifact of a batch run, handed to the exporters.
type Result struct {
	Columns  []string
	Rows     []ResultRow
	Resolved int
	Failed   int
}

// Run geocodes every row of the table, reading addresses from addressColumn.
// Per-address failures are recorded in the result rows; the returned error
// covers only batch-level faults (unknown column, missing collaborators).
func (r *Runner) Run(ctx context.Context, tbl *table.Table, addressColumn string) (*Result, error) {
	if r.Resolver == nil {
		return nil, eris.New("batch: resolver not configured")
	}
	if r.Transformer == nil {
		return nil, eris.New("batch: transformer not configured")
	}

	col, ok := tbl.ColumnIndex(addressColumn)
	if !ok {
		return nil, eris.Errorf("batch: address column %q not found", addressColumn)
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	total := len(tbl.Rows)
	rows := make([]ResultRow, total)

	// Completion events funnel through a single collector so progress
	// reporting never races, regardless of which worker finishes first.
	completions := make(chan struct{})
	var collector sync.WaitGroup
	collector.Add(1)
	go func() {
		defer collector.Done()
		done := 0
		for range completions {
			done++
			if r.OnProgress != nil {
				r.OnProgress(done, total)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, row := range tbl.Rows {
		i, row := i, row
		g.Go(func() error {
			rows[i] = r.processRow(gctx, row, col)
			completions <- struct{}{}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		close(completions)
		collector.Wait()
		return nil, eris.Wrap(err, "batch: run")
	}
	close(completions)
	collector.Wait()

	result := &Result{
		Columns: tbl.Columns,
		Rows:    rows,
	}
	for _, row := range rows {
		if row.Found {
			result.Resolved++
		} else {
			result.Failed++
		}
	}

	zap.L().Info("batch complete",
		zap.Int("rows", total),
		zap.Int("resolved", result.Resolved),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// processRow resolves one row and merges the outcome. Each worker writes
// only its own slot in the result slice, so no lock is needed and the
// output stays index-aligned with the input no matter the completion order.
func (r *Runner) processRow(ctx context.Context, row table.Row, col int) ResultRow {
	out := ResultRow{Index: row.Index, Values: row.Values}

	address := strings.TrimSpace(row.Value(col))
	if address == "" {
		out.Err = ReasonNoValue
		return out
	}

	outcome := r.Resolver.Resolve(ctx, address)
	if !outcome.Resolved {
		out.Err = outcome.Reason
		zap.L().Debug("address unresolved",
			zap.Int("row", row.Index),
			zap.String("reason", outcome.Reason),
		)
		return out
	}

	out.Found = true
	out.Level = outcome.Level
	out.Lat = outcome.Lat
	out.Lng = outcome.Lng
	out.TMX, out.TMY = r.Transformer.Transform(outcome.Lat, outcome.Lng)
	return out
}
