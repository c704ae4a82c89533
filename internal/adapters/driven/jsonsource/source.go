// Package jsonsource serves health records from a JSON fixture file. It
// stands in for the platform health store on hosts that have none, and backs
// the command-line engine during development.
package jsonsource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
	"github.com/openvitals/vitalexport-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RecordSource = (*Source)(nil)

// fixture is the on-disk layout of a source file
type fixture struct {
	// Records is the flat record list; grouped by category on load
	Records []domain.Record `json:"records"`

	// Series maps workout ID to the series recorded during that workout
	Series map[string][]domain.Record `json:"series,omitempty"`

	// Denied lists categories the store refuses access to
	Denied []domain.Category `json:"denied,omitempty"`
}

// Source implements driven.RecordSource over a JSON file. The file is read
// once on first use; records are grouped per category and kept in ascending
// start-time order. Cursors encode a position in that per-category order, so
// a fetch with a prior cursor returns only the records after it.
type Source struct {
	path string

	once    sync.Once
	loadErr error

	byCategory map[domain.Category][]domain.Record
	series     map[string][]domain.Record
	denied     map[domain.Category]bool
}

// NewSource creates a source backed by the JSON file at path
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Fetch returns records for one category inside the window in ascending
// start order, plus the continuation cursor for the next incremental fetch.
func (s *Source) Fetch(ctx context.Context, category domain.Category, window domain.Window, limit int, cursor domain.Cursor) ([]domain.Record, domain.Cursor, error) {
	if err := s.load(); err != nil {
		return nil, "", err
	}
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrCancelled, err)
	}
	if s.denied[category] {
		return nil, "", fmt.Errorf("%w: category %s", domain.ErrPermissionDenied, category)
	}

	all := s.byCategory[category]

	start := 0
	if cursor != "" {
		pos, err := strconv.Atoi(string(cursor))
		if err != nil || pos < 0 {
			return nil, "", fmt.Errorf("%w: malformed cursor %q", domain.ErrInvalidInput, cursor)
		}
		if pos > len(all) {
			pos = len(all)
		}
		start = pos
	}

	var records []domain.Record
	next := cursor
	for i := start; i < len(all); i++ {
		if limit > 0 && len(records) == limit {
			break
		}
		if !window.Contains(all[i].Start) {
			continue
		}
		records = append(records, all[i])
		next = domain.Cursor(strconv.Itoa(i + 1))
	}

	return records, next, nil
}

// FetchAssociatedSeries returns the series recorded during a workout
func (s *Source) FetchAssociatedSeries(ctx context.Context, workoutID string, window domain.Window) ([]domain.Record, error) {
	if err := s.load(); err != nil {
		return nil, err
	}

	var records []domain.Record
	for _, r := range s.series[workoutID] {
		if window.Contains(r.Start) || r.Start.Equal(window.End) {
			records = append(records, r)
		}
	}
	return records, nil
}

// load reads and indexes the fixture file exactly once
func (s *Source) load() error {
	s.once.Do(func() {
		data, err := os.ReadFile(s.path)
		if err != nil {
			s.loadErr = fmt.Errorf("%w: read source file: %v", domain.ErrSourceUnavailable, err)
			return
		}

		var f fixture
		if err := json.Unmarshal(data, &f); err != nil {
			s.loadErr = fmt.Errorf("%w: parse source file: %v", domain.ErrSourceUnavailable, err)
			return
		}

		byCategory := make(map[domain.Category][]domain.Record)
		for i := range f.Records {
			r := f.Records[i]
			if err := r.Validate(); err != nil {
				s.loadErr = err
				return
			}
			byCategory[r.Category] = append(byCategory[r.Category], r)
		}
		for _, records := range byCategory {
			sort.SliceStable(records, func(i, j int) bool {
				return records[i].Start.Before(records[j].Start)
			})
		}

		denied := make(map[domain.Category]bool, len(f.Denied))
		for _, c := range f.Denied {
			denied[c] = true
		}

		s.byCategory = byCategory
		s.series = f.Series
		s.denied = denied
	})
	return s.loadErr
}
