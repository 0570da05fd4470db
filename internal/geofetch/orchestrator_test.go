package geofetch

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geomatch-cli/internal/fieldmap"
	"github.com/sells-group/geomatch-cli/internal/geocache"
	"github.com/sells-group/geomatch-cli/internal/resilience"
	"github.com/sells-group/geomatch-cli/internal/tabular"
	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

// fakeClient resolves addresses via fn and counts calls.
type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(address string) (*geocode.Result, error)
}

func (f *fakeClient) Geocode(_ context.Context, address string) (*geocode.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.fn(address)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func addressTable(t *testing.T, rows int) *fieldmap.FieldMap {
	t.Helper()
	data := make([][]string, rows)
	for i := range data {
		data[i] = []string{fmt.Sprintf("%d Main St", i), "Springfield", "IL", "62701"}
	}
	tbl, err := tabular.New("stores.csv", []string{"addr", "city", "state", "zip"}, data)
	require.NoError(t, err)

	fm := fieldmap.New(tbl)
	require.NoError(t, fm.Set(fieldmap.VarAddr1, "addr"))
	require.NoError(t, fm.Set(fieldmap.VarCity, "city"))
	require.NoError(t, fm.Set(fieldmap.VarState, "state"))
	require.NoError(t, fm.Set(fieldmap.VarZipcode, "zip"))
	return fm
}

// rowFromAddress recovers the row index embedded in the street number.
func rowFromAddress(address string) int {
	n, _ := strconv.Atoi(strings.Fields(address)[0])
	return n
}

func fastOptions() Options {
	return Options{
		Workers:           8,
		RequestsPerSecond: 10000,
		Retry:             resilience.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond},
	}
}

func TestFetch_IncompleteConfiguration_NoLookups(t *testing.T) {
	tbl, err := tabular.New("stores.csv", []string{"addr"}, [][]string{{"1 Main St"}})
	require.NoError(t, err)
	fm := fieldmap.New(tbl)
	require.NoError(t, fm.Set(fieldmap.VarAddr1, "addr"))

	client := &fakeClient{fn: func(string) (*geocode.Result, error) {
		return &geocode.Result{}, nil
	}}
	orch := New(client, fastOptions())

	_, _, err = orch.Fetch(context.Background(), fm)
	var incomplete *fieldmap.IncompleteError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []fieldmap.Variable{fieldmap.VarCity, fieldmap.VarState, fieldmap.VarZipcode}, incomplete.Missing)
	assert.Equal(t, 0, client.callCount(), "no lookups may be issued on incomplete configuration")
}

func TestFetch_PreservesRowOrder(t *testing.T) {
	const rows = 40
	fm := addressTable(t, rows)

	client := &fakeClient{fn: func(address string) (*geocode.Result, error) {
		// Random completion order must not affect assembly order.
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		row := rowFromAddress(address)
		return &geocode.Result{
			Latitude:         float64(row),
			Longitude:        float64(row) + 0.5,
			FormattedAddress: address,
		}, nil
	}}
	orch := New(client, fastOptions())

	enriched, summary, err := orch.Fetch(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, rows, summary.Geocoded)
	assert.Equal(t, 0, summary.Failed)

	latIdx := enriched.ColumnIndex(ColLat)
	lngIdx := enriched.ColumnIndex(ColLng)
	require.GreaterOrEqual(t, latIdx, 0)
	for i := 0; i < rows; i++ {
		assert.Equal(t, strconv.Itoa(i), enriched.Cell(i, latIdx), "row %d out of order", i)
		assert.Equal(t, formatCoord(float64(i)+0.5), enriched.Cell(i, lngIdx))
	}
	// Original columns retained, in order, with the new ones appended.
	assert.Equal(t, []string{"addr", "city", "state", "zip", ColNormAddress, ColLat, ColLng}, enriched.Columns)
	assert.Equal(t, rows, fm.Table().NumRows(), "input table must not be mutated")
	assert.Len(t, fm.Table().Columns, 4)
}

func TestFetch_RowFailureDoesNotAbortBatch(t *testing.T) {
	fm := addressTable(t, 5)

	client := &fakeClient{fn: func(address string) (*geocode.Result, error) {
		if rowFromAddress(address) == 2 {
			return nil, resilience.NewPermanentError(geocode.ErrZeroResults, "ZERO_RESULTS")
		}
		return &geocode.Result{Latitude: 1, Longitude: 2, FormattedAddress: address}, nil
	}}
	orch := New(client, fastOptions())

	enriched, summary, err := orch.Fetch(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Geocoded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 5, enriched.NumRows())

	latIdx := enriched.ColumnIndex(ColLat)
	lngIdx := enriched.ColumnIndex(ColLng)
	assert.Empty(t, enriched.Cell(2, latIdx))
	assert.Empty(t, enriched.Cell(2, lngIdx))
	assert.Equal(t, "1", enriched.Cell(1, latIdx))
}

func TestFetch_BlankAddressSkippedWithoutLookup(t *testing.T) {
	tbl, err := tabular.New("stores.csv", []string{"addr", "city", "state", "zip"}, [][]string{
		{"1 Main St", "Springfield", "IL", "62701"},
		{"", "Springfield", "IL", "62701"},
	})
	require.NoError(t, err)
	fm := fieldmap.New(tbl)
	for v, col := range map[fieldmap.Variable]string{
		fieldmap.VarAddr1: "addr", fieldmap.VarCity: "city",
		fieldmap.VarState: "state", fieldmap.VarZipcode: "zip",
	} {
		require.NoError(t, fm.Set(v, col))
	}

	client := &fakeClient{fn: func(address string) (*geocode.Result, error) {
		return &geocode.Result{Latitude: 1, Longitude: 2}, nil
	}}
	orch := New(client, fastOptions())

	_, summary, err := orch.Fetch(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, client.callCount())
}

func TestFetch_AuthFailureAbortsBatch(t *testing.T) {
	fm := addressTable(t, 3)

	client := &fakeClient{fn: func(string) (*geocode.Result, error) {
		return nil, resilience.NewPermanentError(geocode.ErrDenied, "REQUEST_DENIED")
	}}
	orch := New(client, fastOptions())

	enriched, _, err := orch.Fetch(context.Background(), fm)
	assert.Nil(t, enriched, "no partial table on abort")
	var aborted *FetchAbortedError
	require.ErrorAs(t, err, &aborted)
}

func TestFetch_Cancellation_NoPartialTable(t *testing.T) {
	fm := addressTable(t, 20)
	ctx, cancel := context.WithCancel(context.Background())

	client := &fakeClient{fn: func(address string) (*geocode.Result, error) {
		cancel()
		return nil, ctx.Err()
	}}
	orch := New(client, fastOptions())

	enriched, _, err := orch.Fetch(ctx, fm)
	require.Error(t, err)
	assert.Nil(t, enriched)
}

func TestFetch_RetriesTransient(t *testing.T) {
	fm := addressTable(t, 1)

	var attempts int
	client := &fakeClient{fn: func(address string) (*geocode.Result, error) {
		attempts++
		if attempts == 1 {
			return nil, resilience.NewTransientError(fmt.Errorf("geocode: http 503"), 503)
		}
		return &geocode.Result{Latitude: 1, Longitude: 2}, nil
	}}
	opts := fastOptions()
	opts.Retry = resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	orch := New(client, opts)

	_, summary, err := orch.Fetch(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Geocoded)
	assert.Equal(t, 2, client.callCount())
}

func TestFetch_CacheAvoidsRepeatLookups(t *testing.T) {
	cache, err := geocache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck

	fm := addressTable(t, 4)
	client := &fakeClient{fn: func(address string) (*geocode.Result, error) {
		return &geocode.Result{Latitude: 1, Longitude: 2, FormattedAddress: address}, nil
	}}
	opts := fastOptions()
	opts.Cache = cache
	orch := New(client, opts)

	_, first, err := orch.Fetch(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, 0, first.CacheHits)
	assert.Equal(t, 4, client.callCount())

	_, second, err := orch.Fetch(context.Background(), fm)
	require.NoError(t, err)
	assert.Equal(t, 4, second.CacheHits)
	assert.Equal(t, 4, second.Geocoded)
	assert.Equal(t, 4, client.callCount(), "cached rows must not hit the service again")
}
