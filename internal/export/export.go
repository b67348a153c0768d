// Package export turns API resources into CSV tables and reads the serial
// lists that drive per-device lookups.
package export

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tonimelisma/axm-go/internal/axm"
)

// Leading column sets. A three-column set puts the input serial first.
var (
	ResourceColumns = []string{"id", "type"}
	DeviceColumns   = []string{"inputSerial", "id", "type"}
	ServerColumns   = []string{"inputSerial", "mdmServerId", "type"}
	CoverageColumns = []string{"inputSerial", "coverageId", "type"}
)

// ErrNoSerials is returned when a serial list contains no entries.
var ErrNoSerials = errors.New("export: no serial numbers")

// ReadSerials reads one serial number per line from path. Surrounding
// whitespace and blank lines are dropped, and a leading UTF-8 BOM is
// ignored.
func ReadSerials(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: reading serials: %w", err)
	}
	defer f.Close()

	serials, err := ParseSerials(f)
	if err != nil {
		return nil, fmt.Errorf("export: %s: %w", path, err)
	}

	return serials, nil
}

// ParseSerials is ReadSerials over an arbitrary reader.
func ParseSerials(r io.Reader) ([]string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	sc := bufio.NewScanner(transform.NewReader(r, dec))

	var serials []string

	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			serials = append(serials, s)
		}
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(serials) == 0 {
		return nil, ErrNoSerials
	}

	return serials, nil
}

// Record pairs a resource with the serial it was looked up by. Serial is
// empty for collection exports.
type Record struct {
	Serial   string
	Resource axm.Resource
}

// Records wraps resources that have no input serial.
func Records(resources []axm.Resource) []Record {
	out := make([]Record, len(resources))
	for i, r := range resources {
		out[i] = Record{Resource: r}
	}

	return out
}

// Table is a header plus rows of equal width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Flatten builds a table whose columns are leading followed by the sorted
// union of every record's attribute names. leading is either an id/type
// pair or a serial/id/type triple.
func Flatten(records []Record, leading []string) (Table, error) {
	if len(leading) != 2 && len(leading) != 3 {
		return Table{}, fmt.Errorf("export: leading columns must be 2 or 3, got %d", len(leading))
	}

	withSerial := len(leading) == 3

	attrs := make([]map[string]any, len(records))
	seen := map[string]bool{}

	for i, rec := range records {
		m, err := rec.Resource.AttributeMap()
		if err != nil {
			return Table{}, err
		}

		attrs[i] = m

		for k := range m {
			seen[k] = true
		}
	}

	var keys []string

	for k := range seen {
		if !slices.Contains(leading, k) {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	t := Table{
		Header: append(slices.Clone(leading), keys...),
		Rows:   make([][]string, 0, len(records)),
	}

	for i, rec := range records {
		row := make([]string, 0, len(t.Header))
		if withSerial {
			row = append(row, rec.Serial)
		}

		row = append(row, rec.Resource.ID, rec.Resource.Type)

		for _, k := range keys {
			row = append(row, formatValue(attrs[i][k]))
		}

		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// formatValue renders one attribute as a CSV cell.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}

		return "false"
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = formatValue(e)
		}

		return strings.Join(parts, ",")
	default:
		var buf bytes.Buffer

		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)

		if err := enc.Encode(x); err != nil {
			return fmt.Sprint(x)
		}

		return strings.TrimSuffix(buf.String(), "\n")
	}
}

// WriteCSV writes t to w as UTF-8 CSV with a byte order mark, the form
// spreadsheet applications open without an import dialog.
func WriteCSV(w io.Writer, t Table) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)

	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("export: writing header: %w", err)
	}

	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("export: writing rows: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("export: flushing csv: %w", err)
	}

	return nil
}

// WriteCSVFile writes t to path, replacing any existing file.
func WriteCSVFile(path string, t Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: creating %s: %w", path, err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("export: closing %s: %w", path, cerr)
		}
	}()

	return WriteCSV(f, t)
}
