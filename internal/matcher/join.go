package matcher

import (
	"sort"
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/fieldmap"
	"github.com/sells-group/geomatch-cli/internal/tabular"
)

// Options tunes a match run.
type Options struct {
	Method Method
	// RadiusMiles is the maximum haversine distance for two keys to match.
	// Zero (the default) requires exact coordinate equality.
	RadiusMiles float64
	// Exclusive consumes each right-side row after its first match.
	Exclusive bool
}

// Stats reports the outcome of a match run.
type Stats struct {
	LeftRows   int
	RightRows  int
	Matched    int
	OutputRows int
}

// Engine joins exactly two enriched tables into one output table.
type Engine struct {
	opts Options
}

// New creates an Engine.
func New(opts Options) *Engine {
	if opts.Method == "" {
		opts.Method = MethodLeft
	}
	return &Engine{opts: opts}
}

// Join matches the two configured tables and returns the combined output
// table. All configuration checks run before any row is emitted; after
// them the join is deterministic.
func (e *Engine) Join(maps []*fieldmap.FieldMap) (*tabular.Table, *Stats, error) {
	if len(maps) != 2 {
		return nil, nil, &UnsupportedArityError{Count: len(maps)}
	}
	left, right := maps[0], maps[1]

	for _, fm := range maps {
		if err := fm.CheckComplete(fieldmap.MatchVariables()); err != nil {
			return nil, nil, err
		}
	}

	columns, err := e.outputColumns(left, right)
	if err != nil {
		return nil, nil, err
	}

	leftTable, rightTable := left.Table(), right.Table()
	leftKeys := parseKeys(leftTable, left)
	rightKeys := parseKeys(rightTable, right)

	stats := &Stats{LeftRows: leftTable.NumRows(), RightRows: rightTable.NumRows()}
	consumed := make([]bool, rightTable.NumRows())

	var rows [][]string
	for i := 0; i < leftTable.NumRows(); i++ {
		match, dist := e.findMatch(i, left, right, leftKeys, rightKeys, consumed)

		if match >= 0 {
			stats.Matched++
			if e.opts.Exclusive {
				consumed[match] = true
			}
		} else if e.opts.Method == MethodInner {
			continue
		}

		rows = append(rows, e.outputRow(left, right, i, match, dist))
	}
	stats.OutputRows = len(rows)

	out, err := tabular.New("matches", columns, rows)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("match complete",
		zap.String("method", string(e.opts.Method)),
		zap.Float64("radius_miles", e.opts.RadiusMiles),
		zap.Int("matched", stats.Matched),
		zap.Int("output_rows", stats.OutputRows),
	)
	return out, stats, nil
}

// outputColumns builds the final header list and rejects collisions before
// any row is emitted.
func (e *Engine) outputColumns(left, right *fieldmap.FieldMap) ([]string, error) {
	if len(left.OutputColumns())+len(right.OutputColumns()) == 0 {
		return nil, ErrNoOutputColumns
	}

	var columns []string
	seen := make(map[string]struct{})
	for _, fm := range []*fieldmap.FieldMap{left, right} {
		for _, col := range fm.OutputColumns() {
			name := fm.OutputName(col)
			if _, dup := seen[name]; dup {
				return nil, &DuplicateOutputColumnError{Name: name}
			}
			seen[name] = struct{}{}
			columns = append(columns, name)
		}
	}

	if e.distanceColumn() {
		name := "distance"
		if _, dup := seen[name]; dup {
			return nil, &DuplicateOutputColumnError{Name: name}
		}
		columns = append(columns, name)
	}
	return columns, nil
}

// distanceColumn reports whether the output carries the match distance:
// only for radius-based left joins, where unmatched rows make the distance
// informative.
func (e *Engine) distanceColumn() bool {
	return e.opts.Method == MethodLeft && e.opts.RadiusMiles > 0
}

// findMatch returns the matching right row for left row i, or -1. Exact key
// equality always wins; with a radius configured the nearest candidate
// within the radius matches. Ties between exact candidates fall to the
// compare-column tie-break.
func (e *Engine) findMatch(i int, left, right *fieldmap.FieldMap, leftKeys, rightKeys []geom.Coord, consumed []bool) (int, float64) {
	key := leftKeys[i]
	if !keyValid(key) {
		return -1, 0
	}

	var exact []int
	nearest := -1
	nearestPlanar := 0.0
	for j, candidate := range rightKeys {
		if (e.opts.Exclusive && consumed[j]) || !keyValid(candidate) {
			continue
		}
		if keysEqual(key, candidate) {
			exact = append(exact, j)
			continue
		}
		if len(exact) > 0 || e.opts.RadiusMiles <= 0 {
			continue
		}
		if d := planarDistance(key, candidate); nearest < 0 || d < nearestPlanar {
			nearest, nearestPlanar = j, d
		}
	}

	switch {
	case len(exact) == 1:
		return exact[0], 0
	case len(exact) > 1:
		return e.tieBreak(i, exact, left, right), 0
	}

	if nearest >= 0 {
		if d := haversineMiles(key, rightKeys[nearest]); d <= e.opts.RadiusMiles {
			return nearest, d
		}
	}
	return -1, 0
}

// tieBreak picks among multiple exact matches: highest compare-column
// similarity when compare columns are configured, otherwise the first
// candidate in original row order.
func (e *Engine) tieBreak(leftRow int, candidates []int, left, right *fieldmap.FieldMap) int {
	src := compareCells(left, leftRow)
	if len(src) == 0 || len(right.CompareColumns()) == 0 {
		return candidates[0]
	}

	best, bestScore := candidates[0], -1.0
	for _, j := range candidates {
		score := compareScore(src, compareCells(right, j))
		if score > bestScore {
			best, bestScore = j, score
		}
	}
	return best
}

func compareCells(fm *fieldmap.FieldMap, row int) []string {
	t := fm.Table()
	cols := fm.CompareColumns()
	cells := make([]string, len(cols))
	for i, col := range cols {
		cells[i] = t.Cell(row, t.ColumnIndex(col))
	}
	return cells
}

// compareScore sums, over the candidate's compare cells, the best token
// similarity against any of the source cells.
func compareScore(src, candidate []string) float64 {
	metric := metrics.NewSorensenDice()
	var total float64
	for _, c := range candidate {
		best := 0.0
		for _, s := range src {
			if sim := strutil.Similarity(sortTokens(s), sortTokens(c), metric); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total
}

// sortTokens lowercases and token-sorts a cell so word order does not skew
// the similarity.
func sortTokens(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	sort.Strings(fields)
	return strings.Join(fields, " ")
}

// outputRow projects one combined row. match < 0 leaves the right side
// (and distance) empty.
func (e *Engine) outputRow(left, right *fieldmap.FieldMap, leftRow, match int, dist float64) []string {
	var row []string
	row = append(row, projectCells(left, leftRow)...)

	if match >= 0 {
		row = append(row, projectCells(right, match)...)
	} else {
		for range right.OutputColumns() {
			row = append(row, "")
		}
	}

	if e.distanceColumn() {
		if match >= 0 {
			row = append(row, strconv.FormatFloat(dist, 'f', -1, 64))
		} else {
			row = append(row, "")
		}
	}
	return row
}

func projectCells(fm *fieldmap.FieldMap, row int) []string {
	t := fm.Table()
	cells := make([]string, len(fm.OutputColumns()))
	for i, col := range fm.OutputColumns() {
		cells[i] = t.Cell(row, t.ColumnIndex(col))
	}
	return cells
}
