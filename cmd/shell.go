package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/config"
	"github.com/sells-group/geomatch-cli/internal/fieldmap"
	"github.com/sells-group/geomatch-cli/internal/geocache"
	"github.com/sells-group/geomatch-cli/internal/geofetch"
	"github.com/sells-group/geomatch-cli/internal/matcher"
	"github.com/sells-group/geomatch-cli/internal/resilience"
	"github.com/sells-group/geomatch-cli/internal/tabular"
	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

const splash = `---------------------- GEOMATCH -------------------------
type help to see commands and options
`

const helpMsg = `HELP:
    list <index>              List all columns in the file with index
    config                    Print the current configuration
    load <path>               Load another file (.csv or .xlsx)
    set <index> <var> <col>   Assign a column to a runtime variable
        fetch vars: addr1 [required] addr2 [optional] city state zipcode [required]
        match vars: lat lng [required]
    add <index> <type> <col>  Add a column for a specific purpose
        type: output  (write the column to the result file)
              compare (differentiate between duplicate locations)
    prefix <index> <value>    Set the output column prefix for a file
    method <left|inner>       Set the join method
    radius <miles>            Match locations within this distance (0 = exact)
    exclusive <true|false>    Allow an entry to match at most one entry
    fetch                     Fetch coordinate pairs and write *_coords files
    match                     Match two files together and write matches
    quit                      Quit
`

// session is the configuration context the shell mutates between fetch and
// match runs: one FieldMap per loaded table plus the join settings.
type session struct {
	cfg       *config.Config
	tables    []*tabular.Table
	maps      []*fieldmap.FieldMap
	method    matcher.Method
	radius    float64
	exclusive bool

	// newClient is swapped out by tests.
	newClient func() geocode.Client
	out       io.Writer
}

func newSession(cfg *config.Config, out io.Writer) *session {
	s := &session{
		cfg:       cfg,
		method:    matcher.MethodLeft,
		exclusive: true,
		out:       out,
	}
	s.newClient = func() geocode.Client {
		return geocode.NewClient(cfg.Geocode.APIKey,
			geocode.WithTimeout(time.Duration(cfg.Geocode.TimeoutSecs)*time.Second))
	}
	return s
}

// runShell loads the named files and processes commands until quit or EOF.
func runShell(ctx context.Context, cfg *config.Config, files []string, in io.Reader, out io.Writer) error {
	s := newSession(cfg, out)
	for _, path := range files {
		if err := s.loadFile(path); err != nil {
			return err
		}
	}

	fmt.Fprint(out, splash)
	fmt.Fprint(out, "geomatch> ")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := s.execute(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
		}
		if quit {
			return nil
		}
		fmt.Fprint(out, "geomatch> ")
	}
	return scanner.Err()
}

func (s *session) loadFile(path string) error {
	var t *tabular.Table
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err = tabular.ReadXLSX(path, tabular.XLSXOptions{})
	default:
		t, err = tabular.ReadCSV(path, tabular.CSVOptions{TrimSpace: true})
	}
	if err != nil {
		return err
	}

	fm := fieldmap.New(t)
	if err := fm.GuessAssignments(); err != nil {
		return err
	}

	s.tables = append(s.tables, t)
	s.maps = append(s.maps, fm)
	zap.L().Info("loaded file",
		zap.String("file", t.Name),
		zap.Int("columns", len(t.Columns)),
		zap.Int("rows", t.NumRows()),
	)
	return nil
}

// execute dispatches one command line. It returns quit=true for quit/exit.
func (s *session) execute(ctx context.Context, line string) (bool, error) {
	input := strings.Fields(line)
	if len(input) == 0 {
		return false, nil
	}

	switch input[0] {
	case "help":
		fmt.Fprint(s.out, helpMsg)
		return false, nil
	case "quit", "exit":
		return true, nil
	case "list":
		return false, s.cmdList(input)
	case "config":
		return false, s.cmdConfig()
	case "load":
		return false, s.cmdLoad(input)
	case "set":
		return false, s.cmdSet(input)
	case "add":
		return false, s.cmdAdd(input)
	case "prefix":
		return false, s.cmdPrefix(input)
	case "method":
		return false, s.cmdMethod(input)
	case "radius":
		return false, s.cmdRadius(input)
	case "exclusive":
		return false, s.cmdExclusive(input)
	case "fetch":
		return false, s.cmdFetch(ctx)
	case "match":
		return false, s.cmdMatch()
	default:
		fmt.Fprintf(s.out, "Unknown command: %q\n", input[0])
		fmt.Fprint(s.out, helpMsg)
		return false, nil
	}
}

// tableIndex parses and bounds-checks a file index argument.
func (s *session) tableIndex(arg string) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, eris.Wrapf(err, "bad file index %q", arg)
	}
	if index < 0 || index >= len(s.tables) {
		return 0, eris.Errorf("file index %d out of bounds (%d files loaded)", index, len(s.tables))
	}
	return index, nil
}

func (s *session) cmdList(input []string) error {
	if len(input) < 2 {
		return eris.New("file index required")
	}
	index, err := s.tableIndex(input[1])
	if err != nil {
		return err
	}
	for _, col := range s.tables[index].Columns {
		fmt.Fprintf(s.out, "\t%s\n", col)
	}
	return nil
}

func (s *session) cmdConfig() error {
	for i, fm := range s.maps {
		fmt.Fprintf(s.out, "%d: %s\n", i, fm.Describe())
	}
	fmt.Fprintf(s.out, "Method: %s\n", s.method)
	fmt.Fprintf(s.out, "Radius: %g\n", s.radius)
	fmt.Fprintf(s.out, "Exclusive: %t\n", s.exclusive)
	return nil
}

func (s *session) cmdLoad(input []string) error {
	if len(input) < 2 {
		return eris.New("path required")
	}
	return s.loadFile(input[1])
}

func (s *session) cmdSet(input []string) error {
	if len(input) < 4 {
		return eris.New("usage: set <index> <var> <col>")
	}
	index, err := s.tableIndex(input[1])
	if err != nil {
		return err
	}
	v, err := fieldmap.ParseVariable(input[2])
	if err != nil {
		return err
	}
	return s.maps[index].Set(v, strings.Join(input[3:], " "))
}

func (s *session) cmdAdd(input []string) error {
	if len(input) < 4 {
		return eris.New("usage: add <index> <output|compare> <col>")
	}
	index, err := s.tableIndex(input[1])
	if err != nil {
		return err
	}
	kind, err := fieldmap.ParseColumnKind(input[2])
	if err != nil {
		return err
	}
	return s.maps[index].AddColumn(kind, strings.Join(input[3:], " "))
}

func (s *session) cmdPrefix(input []string) error {
	if len(input) < 3 {
		return eris.New("usage: prefix <index> <value>")
	}
	index, err := s.tableIndex(input[1])
	if err != nil {
		return err
	}
	s.maps[index].SetPrefix(input[2])
	return nil
}

func (s *session) cmdMethod(input []string) error {
	if len(input) < 2 {
		return eris.New("method required")
	}
	method, err := matcher.ParseMethod(input[1])
	if err != nil {
		return err
	}
	s.method = method
	return nil
}

func (s *session) cmdRadius(input []string) error {
	if len(input) < 2 {
		return eris.New("radius required")
	}
	radius, err := strconv.ParseFloat(input[1], 64)
	if err != nil {
		return eris.Wrapf(err, "bad radius %q", input[1])
	}
	if radius < 0 {
		return eris.New("radius must be >= 0")
	}
	s.radius = radius
	return nil
}

func (s *session) cmdExclusive(input []string) error {
	if len(input) < 2 {
		return eris.New("value required")
	}
	switch strings.ToLower(input[1]) {
	case "true":
		s.exclusive = true
	case "false":
		s.exclusive = false
	default:
		return eris.New("value must be true or false")
	}
	return nil
}

// cmdFetch geocodes every loaded table and writes one *_coords file per
// input. Configuration is checked for every table before the first lookup.
func (s *session) cmdFetch(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Geocode.APIKey) == "" {
		return eris.New("geocoding API key required (flag -k or GEOMATCH_GEOCODE_API_KEY)")
	}
	for _, fm := range s.maps {
		if err := fm.CheckComplete(fieldmap.FetchVariables()); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache *geocache.Cache
	if s.cfg.Cache.Enabled {
		var err error
		cache, err = geocache.Open(s.cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck
	}

	orch := geofetch.New(s.newClient(), geofetch.Options{
		Workers:           s.cfg.Fetch.Workers,
		RequestsPerSecond: s.cfg.Geocode.RequestsPerSecond,
		Retry: resilience.RetryConfig{
			MaxAttempts: s.cfg.Fetch.MaxAttempts,
			OnRetry:     resilience.RetryLogger("geocode", "lookup"),
		},
		Cache: cache,
	})

	for i, t := range s.tables {
		fmt.Fprintf(s.out, "Fetching %d coords for %s\n", t.NumRows(), t.Name)

		enriched, summary, err := orch.Fetch(ctx, s.maps[i])
		if err != nil {
			return err
		}

		// Rebind the configuration to the enriched table and point the
		// match variables at the new coordinate columns.
		fm := s.maps[i].Rebind(enriched)
		if err := fm.Set(fieldmap.VarLat, geofetch.ColLat); err != nil {
			return err
		}
		if err := fm.Set(fieldmap.VarLng, geofetch.ColLng); err != nil {
			return err
		}
		s.tables[i] = enriched
		s.maps[i] = fm

		path := coordsPath(t.Name)
		if err := tabular.WriteCSV(enriched, path, s.delimiter()); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Wrote %s (%d geocoded, %d failed)\n", path, summary.Geocoded, summary.Failed)
	}
	return nil
}

// cmdMatch joins the two loaded tables and writes the combined output.
func (s *session) cmdMatch() error {
	engine := matcher.New(matcher.Options{
		Method:      s.method,
		RadiusMiles: s.radius,
		Exclusive:   s.exclusive,
	})

	result, stats, err := engine.Join(s.maps)
	if err != nil {
		return err
	}

	const path = "matches.csv"
	if err := tabular.WriteCSV(result, path, s.delimiter()); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Wrote %s (%d of %d rows matched)\n", path, stats.Matched, stats.LeftRows)
	return nil
}

func (s *session) delimiter() rune {
	if s.cfg.Output.Delimiter == "" {
		return ','
	}
	return []rune(s.cfg.Output.Delimiter)[0]
}

// coordsPath derives the enriched-table file name: input stem + _coords.csv.
func coordsPath(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return stem + "_coords.csv"
}
