package reference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"tradequery/internal/model"
)

const (
	ImportSheet = "Import Concordance"
	ExportSheet = "Export Concordance"

	fullCodeLength = 10
)

var (
	codeColumns        = []string{"hts10", "schedule_b", "commodity"}
	descriptionColumns = []string{"description_long", "description", "desc"}
)

// Concordance holds the import and export commodity code descriptions read
// from the trade commodity translation workbook.
type Concordance struct {
	imports []Entry
	exports []Entry
}

func NewConcordance(imports, exports []Entry) *Concordance {
	return &Concordance{imports: imports, exports: exports}
}

// LoadConcordance reads the import and export sheets of an xlsx workbook.
// Codes that lost their leading zeros to numeric cells are padded back to ten
// digits.
func LoadConcordance(path string) (*Concordance, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("reference: concordance path is required")
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference: open concordance: %w", err)
	}
	defer f.Close()

	imports, err := readConcordanceSheet(f, ImportSheet)
	if err != nil {
		return nil, err
	}
	exports, err := readConcordanceSheet(f, ExportSheet)
	if err != nil {
		return nil, err
	}
	return NewConcordance(imports, exports), nil
}

func readConcordanceSheet(f *excelize.File, sheet string) ([]Entry, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reference: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("reference: sheet %q is empty", sheet)
	}

	header := normalizeHeader(rows[0])
	codeIdx, ok := firstColumn(header, codeColumns)
	if !ok {
		return nil, fmt.Errorf("reference: sheet %q has no code column", sheet)
	}
	descIdx, ok := firstColumn(header, descriptionColumns)
	if !ok {
		return nil, fmt.Errorf("reference: sheet %q has no description column", sheet)
	}

	entries := make([]Entry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		code := padCode(getCell(row, codeIdx))
		if code == "" {
			continue
		}
		entries = append(entries, Entry{Code: code, Name: getCell(row, descIdx)})
	}
	return entries, nil
}

func firstColumn(header map[string]int, names []string) (int, bool) {
	for _, name := range names {
		if idx, ok := header[name]; ok {
			return idx, true
		}
	}
	return 0, false
}

func padCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || len(code) >= fullCodeLength || !isDigits(code) {
		return code
	}
	return strings.Repeat("0", fullCodeLength-len(code)) + code
}

// Search returns the codes whose description contains keyword, truncated to
// level digits. Codes collapsing to the same prefix are reported once, with
// the first description seen.
func (c *Concordance) Search(flow model.Flow, keyword string, level int) []Entry {
	if c == nil {
		return nil
	}
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return nil
	}
	if level <= 0 || level > fullCodeLength {
		level = fullCodeLength
	}

	source := c.exports
	if flow == model.FlowImport {
		source = c.imports
	}

	matches := make([]Entry, 0)
	for _, entry := range source {
		if !strings.Contains(strings.ToLower(entry.Name), keyword) {
			continue
		}
		code := entry.Code
		if len(code) > level {
			code = code[:level]
		}
		matches = append(matches, Entry{Name: entry.Name, Code: code})
	}
	return uniqueByCode(matches)
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
