package formulas

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Source supplies the coefficient table.
// Table calls Load at most once per cache lifetime.
type Source interface {
	// Load reads every formula row in table order
	Load(ctx context.Context) ([]Formula, error)

	// Name identifies the source in logs and errors
	Name() string
}

// CSVFileSource reads the coefficient table from a CSV file on disk
type CSVFileSource struct {
	path string
}

// NewCSVFileSource creates a source for the CSV file at path
func NewCSVFileSource(path string) *CSVFileSource {
	return &CSVFileSource{path: path}
}

// Load opens and parses the file
func (s *CSVFileSource) Load(ctx context.Context) ([]Formula, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open coefficient table: %w", err)
	}
	defer f.Close()

	return ParseCSV(f)
}

func (s *CSVFileSource) Name() string {
	return "csv:" + s.path
}

// StaticSource serves a fixed set of rows held in memory.
// Thread-safe with RWMutex; Replace swaps the rows the next Load returns.
type StaticSource struct {
	formulas []Formula
	loads    int
	mu       sync.RWMutex
}

// NewStaticSource creates a source serving a copy of formulas
func NewStaticSource(formulas []Formula) *StaticSource {
	s := &StaticSource{}
	s.Replace(formulas)
	return s
}

// Load returns a copy of the rows
func (s *StaticSource) Load(ctx context.Context) ([]Formula, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads++
	out := make([]Formula, len(s.formulas))
	copy(out, s.formulas)
	return out, nil
}

// Replace swaps the rows returned by later loads
func (s *StaticSource) Replace(formulas []Formula) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.formulas = make([]Formula, len(formulas))
	copy(s.formulas, formulas)
}

// Loads returns how many times Load has been called
func (s *StaticSource) Loads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loads
}

func (s *StaticSource) Name() string {
	return "static"
}
