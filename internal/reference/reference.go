package reference

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"tradequery/internal/model"
)

const (
	countryFile      = "country.csv"
	districtPortFile = "district_port.csv"
	stateFile        = "states.csv"
)

//go:embed data/*.csv
var embedded embed.FS

var (
	defaultOnce   sync.Once
	defaultTables *Tables
	defaultErr    error
)

// Entry maps a human-readable name to a provider code.
type Entry struct {
	Name string
	Code string
}

// Table is a read-only name/code lookup for one dimension.
type Table struct {
	dimension model.Dimension
	entries   []Entry
	codes     map[string]struct{}
}

func NewTable(dim model.Dimension, entries []Entry) *Table {
	table := &Table{
		dimension: dim,
		entries:   make([]Entry, 0, len(entries)),
		codes:     make(map[string]struct{}, len(entries)),
	}
	for _, entry := range entries {
		entry.Name = strings.TrimSpace(entry.Name)
		entry.Code = strings.TrimSpace(entry.Code)
		if entry.Code == "" {
			continue
		}
		table.entries = append(table.entries, entry)
		table.codes[strings.ToUpper(entry.Code)] = struct{}{}
	}
	return table
}

func (t *Table) Dimension() model.Dimension {
	return t.dimension
}

func (t *Table) Len() int {
	return len(t.entries)
}

// HasCode reports whether code is a known code. Comparison ignores case.
func (t *Table) HasCode(code string) bool {
	_, ok := t.codes[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Find returns the entries whose name matches query, ignoring case. An exact
// name match takes precedence over substring matches. Entries sharing a code
// are reported once.
func (t *Table) Find(query string) []Entry {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	exact := make([]Entry, 0, 1)
	partial := make([]Entry, 0)
	for _, entry := range t.entries {
		name := strings.ToLower(entry.Name)
		switch {
		case name == query:
			exact = append(exact, entry)
		case strings.Contains(name, query):
			partial = append(partial, entry)
		}
	}
	if len(exact) > 0 {
		return uniqueByCode(exact)
	}
	return uniqueByCode(partial)
}

func uniqueByCode(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.Code]; ok {
			continue
		}
		seen[entry.Code] = struct{}{}
		out = append(out, entry)
	}
	return out
}

// Tables groups the lookups the dimension collector resolves names against.
type Tables struct {
	Countries   *Table
	Districts   *Table
	Ports       *Table
	States      *Table
	Concordance *Concordance
}

// For returns the lookup for a dimension. Commodity codes live in the
// concordance and have no table.
func (t *Tables) For(dim model.Dimension) (*Table, bool) {
	var table *Table
	switch dim {
	case model.DimCountry:
		table = t.Countries
	case model.DimDistrict:
		table = t.Districts
	case model.DimPort:
		table = t.Ports
	case model.DimState:
		table = t.States
	}
	return table, table != nil
}

// Default returns the tables shipped with the binary.
func Default() (*Tables, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "data")
		if err != nil {
			defaultErr = err
			return
		}
		defaultTables, defaultErr = Load(sub)
	})
	return defaultTables, defaultErr
}

// LoadDir reads the reference CSV files from a directory.
func LoadDir(dir string) (*Tables, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("reference: directory is required")
	}
	return Load(os.DirFS(dir))
}

// Load reads country.csv (Name,Code), district_port.csv
// (Name,District,Port) and states.csv (State,Abbreviation) from fsys.
func Load(fsys fs.FS) (*Tables, error) {
	countries, err := readTable(fsys, countryFile, model.DimCountry, "name", "code")
	if err != nil {
		return nil, err
	}
	districts, err := readTable(fsys, districtPortFile, model.DimDistrict, "name", "district")
	if err != nil {
		return nil, err
	}
	ports, err := readTable(fsys, districtPortFile, model.DimPort, "name", "port")
	if err != nil {
		return nil, err
	}
	states, err := readTable(fsys, stateFile, model.DimState, "state", "abbreviation")
	if err != nil {
		return nil, err
	}
	return &Tables{
		Countries: countries,
		Districts: districts,
		Ports:     ports,
		States:    states,
	}, nil
}

func readTable(fsys fs.FS, name string, dim model.Dimension, nameColumn, codeColumn string) (*Table, error) {
	file, err := fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("reference: open %s: %w", name, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reference: read %s header: %w", name, err)
	}
	columns := normalizeHeader(header)
	nameIdx, ok := columns[nameColumn]
	if !ok {
		return nil, fmt.Errorf("reference: %s missing column %q", name, nameColumn)
	}
	codeIdx, ok := columns[codeColumn]
	if !ok {
		return nil, fmt.Errorf("reference: %s missing column %q", name, codeColumn)
	}

	entries := make([]Entry, 0)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reference: read %s: %w", name, err)
		}
		entries = append(entries, Entry{
			Name: getCell(record, nameIdx),
			Code: getCell(record, codeIdx),
		})
	}
	return NewTable(dim, entries), nil
}

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value, "\ufeff")))
		if key == "" {
			continue
		}
		if _, ok := result[key]; ok {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}
