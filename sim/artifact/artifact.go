// Package artifact loads pre-computed epidemiological input data: baseline
// rates, prevalences, exposure distributions, and relative risks, indexed by
// sex, age interval, year interval, and input draw.
package artifact

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Row is one record of an artifact table with its draw value resolved.
// Not every field is meaningful for every table: rate tables use the
// sex/age/year dimensions, exposure distributions use Category or Parameter,
// relative-risk curves use Exposure as the x coordinate, and risk effects
// filter by Target.
type Row struct {
	Sex       string
	AgeStart  float64
	AgeEnd    float64
	YearStart int
	YearEnd   int
	Category  string
	Parameter string
	Target    string
	Exposure  float64
	Value     float64
}

// MissingTableError reports an artifact table a component required but the
// loaded document does not contain.
type MissingTableError struct {
	Key string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("artifact has no table %q", e.Key)
}

// rawRow is the on-disk row shape: one value per input draw.
type rawRow struct {
	Sex       string    `yaml:"sex,omitempty"`
	AgeStart  float64   `yaml:"age_start,omitempty"`
	AgeEnd    float64   `yaml:"age_end,omitempty"`
	YearStart int       `yaml:"year_start,omitempty"`
	YearEnd   int       `yaml:"year_end,omitempty"`
	Category  string    `yaml:"category,omitempty"`
	Parameter string    `yaml:"parameter,omitempty"`
	Target    string    `yaml:"target,omitempty"`
	Exposure  float64   `yaml:"exposure,omitempty"`
	Values    []float64 `yaml:"values"`
}

type document struct {
	Location string              `yaml:"location"`
	Tables   map[string][]rawRow `yaml:"tables"`
}

// Artifact is one location's worth of input data with a single draw selected.
type Artifact struct {
	Location string
	Draw     int
	tables   map[string][]Row
}

// New builds an artifact directly from resolved rows. Used by tests and by
// callers that synthesize inputs.
func New(location string, draw int, tables map[string][]Row) *Artifact {
	return &Artifact{Location: location, Draw: draw, tables: tables}
}

// Load reads an artifact document and resolves the given input draw number.
func Load(path string, draw int) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if draw < 0 {
		return nil, fmt.Errorf("input draw number must not be negative, got %d", draw)
	}
	tables := make(map[string][]Row, len(doc.Tables))
	for key, raws := range doc.Tables {
		rows := make([]Row, 0, len(raws))
		for n, rr := range raws {
			if draw >= len(rr.Values) {
				return nil, fmt.Errorf("artifact table %q row %d has %d draws, want draw %d",
					key, n, len(rr.Values), draw)
			}
			rows = append(rows, Row{
				Sex:       rr.Sex,
				AgeStart:  rr.AgeStart,
				AgeEnd:    rr.AgeEnd,
				YearStart: rr.YearStart,
				YearEnd:   rr.YearEnd,
				Category:  rr.Category,
				Parameter: rr.Parameter,
				Target:    rr.Target,
				Exposure:  rr.Exposure,
				Value:     rr.Values[draw],
			})
		}
		tables[key] = rows
	}
	return &Artifact{Location: doc.Location, Draw: draw, tables: tables}, nil
}

// Table returns the rows of a named table.
func (a *Artifact) Table(key string) ([]Row, error) {
	rows, ok := a.tables[key]
	if !ok {
		return nil, &MissingTableError{Key: key}
	}
	return rows, nil
}

// Keys returns the names of every table in the artifact, sorted.
func (a *Artifact) Keys() []string {
	keys := make([]string, 0, len(a.tables))
	for k := range a.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasTable reports whether a named table is present.
func (a *Artifact) HasTable(key string) bool {
	_, ok := a.tables[key]
	return ok
}

// ParameterValue finds the row whose Parameter field matches name.
func ParameterValue(rows []Row, name string) (float64, error) {
	for _, r := range rows {
		if r.Parameter == name {
			return r.Value, nil
		}
	}
	return 0, fmt.Errorf("no parameter %q in table rows", name)
}
