package tabular

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/htmlindex"
)

// CSVOptions configures CSV reading.
type CSVOptions struct {
	Delimiter rune   // 0 = sniff comma vs pipe from the header row
	Encoding  string // IANA charset name, "" = UTF-8
	TrimSpace bool
}

// ReadCSV loads a delimited file into a Table. With no delimiter configured
// it reads the header once with each candidate delimiter and keeps whichever
// yields more columns.
func ReadCSV(path string, opts CSVOptions) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: read file")
	}

	if opts.Encoding != "" {
		raw, err = decodeCharset(raw, opts.Encoding)
		if err != nil {
			return nil, err
		}
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(raw)
		zap.L().Debug("sniffed csv delimiter",
			zap.String("file", path),
			zap.String("delimiter", string(delim)),
		)
	}

	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.Comma = delim
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, eris.Errorf("csv: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	if opts.TrimSpace {
		for i, col := range header {
			header[i] = strings.TrimSpace(col)
		}
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if opts.TrimSpace {
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
		}
		// Tolerate ragged short rows; the Table invariant requires
		// exactly one cell per column.
		for len(record) < len(header) {
			record = append(record, "")
		}
		rows = append(rows, record[:len(header)])
	}

	return New(filepath.Base(path), header, rows)
}

// WriteCSV serializes a Table to path using the given delimiter
// (0 = comma).
func WriteCSV(t *Table, path string, delimiter rune) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "csv: create file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if delimiter != 0 {
		w.Comma = delimiter
	}

	if err := w.Write(t.Columns); err != nil {
		return eris.Wrap(err, "csv: write header")
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "csv: write row")
		}
	}
	w.Flush()

	return eris.Wrap(w.Error(), "csv: flush")
}

// sniffDelimiter picks comma or pipe by whichever splits the header row
// into more fields.
func sniffDelimiter(raw []byte) rune {
	line := string(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, "|") > strings.Count(line, ",") {
		return '|'
	}
	return ','
}

func decodeCharset(raw []byte, name string) ([]byte, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: unknown encoding %q", name)
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: decode %s", name)
	}
	return decoded, nil
}
