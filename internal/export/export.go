package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"tradequery/internal/catalog"
	"tradequery/internal/model"
)

var (
	ErrWrite        = errors.New("export: write failed")
	ErrNoYearColumn = errors.New("export: table has no YEAR or time column")
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// FileName builds <label>_<tradeType>[_<year>]_<raw|cleaned>.csv. The label is
// omitted when empty after sanitizing.
func FileName(label string, tradeType model.TradeType, year string, cleaned bool) string {
	parts := make([]string, 0, 4)
	if label = sanitize(label); label != "" {
		parts = append(parts, label)
	}
	parts = append(parts, string(tradeType))
	if year != "" {
		parts = append(parts, year)
	}
	if cleaned {
		parts = append(parts, "cleaned")
	} else {
		parts = append(parts, "raw")
	}
	return strings.Join(parts, "_") + ".csv"
}

func sanitize(label string) string {
	label = unsafeLabel.ReplaceAllString(strings.TrimSpace(label), "_")
	return strings.Trim(label, "_")
}

// Export writes the whole table to one CSV file in dir and returns its path.
func Export(table *model.Table, tradeType model.TradeType, dir, label string, cleaned bool) (string, error) {
	if table == nil {
		return "", fmt.Errorf("%w: table is nil", ErrWrite)
	}
	path := filepath.Join(dir, FileName(label, tradeType, "", cleaned))
	if err := writeFile(path, table.Columns, table.Rows); err != nil {
		return "", err
	}
	return path, nil
}

// ExportByYear writes one file per year and returns the paths in ascending
// year order.
func ExportByYear(table *model.Table, tradeType model.TradeType, dir, label string, cleaned bool) ([]string, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: table is nil", ErrWrite)
	}
	yearOf, err := yearFunc(table)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][][]string)
	for _, row := range table.Rows {
		year := yearOf(row)
		groups[year] = append(groups[year], row)
	}
	years := make([]string, 0, len(groups))
	for year := range groups {
		years = append(years, year)
	}
	slices.Sort(years)

	paths := make([]string, 0, len(years))
	for _, year := range years {
		name := year
		if name == "" {
			name = "unknown"
		}
		path := filepath.Join(dir, FileName(label, tradeType, name, cleaned))
		if err := writeFile(path, table.Columns, groups[year]); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func yearFunc(table *model.Table) (func([]string) string, error) {
	if idx := table.Index("YEAR"); idx >= 0 {
		return func(row []string) string { return cell(row, idx) }, nil
	}
	if idx := table.Index(catalog.ParamTime); idx >= 0 {
		return func(row []string) string {
			year, _, _ := strings.Cut(cell(row, idx), "-")
			return year
		}, nil
	}
	return nil, ErrNoYearColumn
}

func cell(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}

func writeFile(path string, columns []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	w := csv.NewWriter(f)
	if len(columns) > 0 {
		if err := w.Write(columns); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
		}
	}
	if err := w.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, path, err)
	}
	return nil
}
