// Package geofetch drives the batch geocoding of one table: a bounded
// worker pool issues paced, retried lookups and reassembles results in the
// table's original row order.
package geofetch

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/geomatch-cli/internal/fieldmap"
	"github.com/sells-group/geomatch-cli/internal/geocache"
	"github.com/sells-group/geomatch-cli/internal/resilience"
	"github.com/sells-group/geomatch-cli/internal/tabular"
	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

// Column names appended to the enriched table.
const (
	ColNormAddress = "norm_address"
	ColLat         = "lat"
	ColLng         = "lng"
)

// FetchAbortedError is a batch-fatal failure: the credential was rejected
// by the lookup service.
type FetchAbortedError struct {
	Err error
}

func (e *FetchAbortedError) Error() string {
	return "fetch aborted: " + e.Err.Error()
}

func (e *FetchAbortedError) Unwrap() error {
	return e.Err
}

// Options tunes the fetch batch.
type Options struct {
	// Workers bounds concurrent lookups. Default 8.
	Workers int
	// RequestsPerSecond is the shared pacing ceiling across all workers.
	// Default 30, the documented safe rate for the lookup service.
	RequestsPerSecond float64
	// Retry controls the per-row retry policy for transient failures.
	Retry resilience.RetryConfig
	// Cache, when set, is consulted before and updated after each lookup.
	Cache *geocache.Cache
}

// Summary reports the outcome of one fetch batch.
type Summary struct {
	RunID     string
	Rows      int
	Geocoded  int
	Failed    int
	CacheHits int
}

// Orchestrator fetches coordinates for every row of a table.
type Orchestrator struct {
	client  geocode.Client
	limiter *rate.Limiter
	opts    Options
}

// New creates an Orchestrator around a geocode client.
func New(client geocode.Client, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 30
	}
	return &Orchestrator{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		opts:    opts,
	}
}

// rowResult is the write-once slot for one row, indexed by original row
// position so assembly order never depends on completion order.
type rowResult struct {
	lat       string
	lng       string
	formatted string
	failed    bool
}

// Fetch geocodes every row of fm's table and returns a new table with
// norm_address, lat and lng columns appended, in the input's row order.
// Rows whose lookup permanently fails keep empty coordinate cells and are
// tallied in the summary; the batch itself fails only on incomplete
// configuration, a rejected credential, or cancellation.
func (o *Orchestrator) Fetch(ctx context.Context, fm *fieldmap.FieldMap) (*tabular.Table, *Summary, error) {
	if err := fm.CheckComplete(fieldmap.FetchVariables()); err != nil {
		return nil, nil, err
	}
	t := fm.Table()

	summary := &Summary{
		RunID: uuid.NewString(),
		Rows:  t.NumRows(),
	}
	log := zap.L().With(
		zap.String("run_id", summary.RunID),
		zap.String("file", t.Name),
	)
	log.Info("starting fetch batch",
		zap.Int("rows", t.NumRows()),
		zap.Int("workers", o.opts.Workers),
		zap.Float64("requests_per_second", o.opts.RequestsPerSecond),
	)

	results := make([]rowResult, t.NumRows())
	var geocoded, failed, cacheHits atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for row := 0; row < t.NumRows(); row++ {
		row := row
		g.Go(func() error {
			address, ok := o.formatAddress(fm, row)
			if !ok {
				// Blank required fields: a permanent per-row failure,
				// no lookup issued.
				results[row] = rowResult{failed: true}
				failed.Add(1)
				return nil
			}

			res, hit, err := o.resolve(gCtx, address)
			switch {
			case err == nil && res != nil:
				results[row] = rowResult{
					lat:       formatCoord(res.Latitude),
					lng:       formatCoord(res.Longitude),
					formatted: res.FormattedAddress,
				}
				geocoded.Add(1)
				if hit {
					cacheHits.Add(1)
				}
				return nil
			case errors.Is(err, geocode.ErrDenied):
				// Credential rejected: abort the whole batch.
				return &FetchAbortedError{Err: err}
			case gCtx.Err() != nil:
				return gCtx.Err()
			default:
				// Permanent row failure, or retries exhausted. Never
				// aborts sibling rows.
				results[row] = rowResult{failed: true}
				failed.Add(1)
				if hit {
					cacheHits.Add(1)
				}
				if err != nil {
					log.Warn("row lookup failed",
						zap.Int("row", row),
						zap.Error(err),
					)
				}
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil {
		// No partial table on abort or cancellation.
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	summary.Geocoded = int(geocoded.Load())
	summary.Failed = int(failed.Load())
	summary.CacheHits = int(cacheHits.Load())

	normCol := make([]string, len(results))
	latCol := make([]string, len(results))
	lngCol := make([]string, len(results))
	for i, r := range results {
		normCol[i] = r.formatted
		latCol[i] = r.lat
		lngCol[i] = r.lng
	}

	enriched, err := t.WithColumns([]string{ColNormAddress, ColLat, ColLng}, [][]string{normCol, latCol, lngCol})
	if err != nil {
		return nil, nil, err
	}

	log.Info("fetch batch complete",
		zap.Int("geocoded", summary.Geocoded),
		zap.Int("failed", summary.Failed),
		zap.Int("cache_hits", summary.CacheHits),
	)
	return enriched, summary, nil
}

// resolve answers one address from the cache when possible, otherwise via a
// paced, retried lookup. A nil result with nil error is a cached zero-result.
func (o *Orchestrator) resolve(ctx context.Context, address string) (*geocode.Result, bool, error) {
	if o.opts.Cache != nil {
		entry, found, err := o.opts.Cache.Get(ctx, address)
		if err != nil {
			zap.L().Warn("geocode cache read failed", zap.Error(err))
		} else if found {
			if !entry.Matched {
				return nil, true, nil
			}
			res := entry.Result
			return &res, true, nil
		}
	}

	res, err := resilience.Do(ctx, o.opts.Retry, func(ctx context.Context) (*geocode.Result, error) {
		if err := o.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return o.client.Geocode(ctx, address)
	})

	if o.opts.Cache != nil {
		switch {
		case err == nil:
			o.storeCache(ctx, address, geocache.Entry{Matched: true, Result: *res})
		case errors.Is(err, geocode.ErrZeroResults):
			o.storeCache(ctx, address, geocache.Entry{Matched: false})
		}
	}

	return res, false, err
}

func (o *Orchestrator) storeCache(ctx context.Context, address string, entry geocache.Entry) {
	if err := o.opts.Cache.Put(ctx, address, entry); err != nil {
		zap.L().Warn("geocode cache write failed", zap.Error(err))
	}
}

// formatAddress builds the comma-joined query string for one row. Rows with
// a blank required field report ok=false.
func (o *Orchestrator) formatAddress(fm *fieldmap.FieldMap, row int) (string, bool) {
	t := fm.Table()
	var parts []string
	for _, v := range []fieldmap.Variable{fieldmap.VarAddr1, fieldmap.VarAddr2, fieldmap.VarCity, fieldmap.VarState, fieldmap.VarZipcode} {
		col, ok := fm.Get(v)
		if !ok {
			continue // addr2 is optional
		}
		cell := strings.TrimSpace(t.Cell(row, t.ColumnIndex(col)))
		if cell == "" && v != fieldmap.VarAddr2 {
			return "", false
		}
		if cell != "" {
			parts = append(parts, cell)
		}
	}
	return strings.Join(parts, ", "), true
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
