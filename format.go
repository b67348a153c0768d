package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/axm-go/internal/axm"
	"github.com/tonimelisma/axm-go/internal/export"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless quiet mode is set.
// Method form of statusf; avoids threading `quiet bool` through call chains.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// formatTime returns a compact local timestamp for display, or "-" for the
// zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04:05 MST")
}

// formatRemaining renders a duration until expiry, rounded to seconds.
func formatRemaining(d time.Duration) string {
	if d <= 0 {
		return "expired"
	}

	return d.Round(time.Second).String()
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// recordJSON is the --json form of one exported record.
type recordJSON struct {
	InputSerial string `json:"inputSerial,omitempty"`
	axm.Resource
}

// emitRecords writes records to output when set, and otherwise to w: JSON
// with --json, an aligned table on a terminal, CSV when piped.
func (cc *CLIContext) emitRecords(w io.Writer, records []export.Record, leading []string, output string) error {
	if output == "" && cc.Flags.JSON {
		out := make([]recordJSON, len(records))
		for i, r := range records {
			out[i] = recordJSON{InputSerial: r.Serial, Resource: r.Resource}
		}

		return writeJSON(w, out)
	}

	tab, err := export.Flatten(records, leading)
	if err != nil {
		return err
	}

	switch {
	case output != "":
		if err := export.WriteCSVFile(output, tab); err != nil {
			return err
		}

		cc.Statusf("Wrote %d records to %s\n", len(tab.Rows), output)

		return nil
	case isTerminal(w):
		printTable(w, tab.Header, tab.Rows)
		return nil
	default:
		return export.WriteCSV(w, tab)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}
