package export

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
)

// Summary tallies the outcome of a per-serial lookup run.
type Summary struct {
	found    int
	notFound []string
	noData   []string
	errs     map[string]string
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{errs: map[string]string{}}
}

// Found records a serial that returned data.
func (s *Summary) Found(string) { s.found++ }

// NotFound records a serial the server does not know.
func (s *Summary) NotFound(serial string) { s.notFound = append(s.notFound, serial) }

// NoData records a serial that exists but returned nothing to export.
func (s *Summary) NoData(serial string) { s.noData = append(s.noData, serial) }

// Error records a serial whose lookup failed for another reason.
func (s *Summary) Error(serial string, err error) {
	if s.errs == nil {
		s.errs = map[string]string{}
	}

	s.errs[serial] = err.Error()
}

// Failures is the number of serials that did not return data.
func (s *Summary) Failures() int { return len(s.notFound) + len(s.noData) + len(s.errs) }

type summaryJSON struct {
	Found    int               `json:"found"`
	NotFound []string          `json:"not_found"`
	NoData   []string          `json:"no_data"`
	Errors   map[string]string `json:"errors"`
}

// MarshalJSON renders the buckets with sorted serial lists.
func (s *Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		Found:    s.found,
		NotFound: sortedCopy(s.notFound),
		NoData:   sortedCopy(s.noData),
		Errors:   s.errs,
	}

	if out.Errors == nil {
		out.Errors = map[string]string{}
	}

	return json.Marshal(out)
}

// Write prints the summary as indented JSON.
func (s *Summary) Write(w io.Writer) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encoding summary: %w", err)
	}

	if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
		return fmt.Errorf("export: writing summary: %w", err)
	}

	return nil
}

func sortedCopy(in []string) []string {
	out := slices.Clone(in)
	if out == nil {
		out = []string{}
	}

	slices.Sort(out)

	return out
}
