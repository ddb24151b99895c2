package clean

import (
	"errors"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"tradequery/internal/catalog"
	"tradequery/internal/model"
)

const (
	ColumnYear  = "YEAR"
	ColumnMonth = "MONTH"
)

var ErrNoTable = errors.New("clean: table is required")

// Report counts the rows each cleaning step removed.
type Report struct {
	Input       int
	Output      int
	Placeholder int
	NonNumeric  int
	ShorterCode int
	Duplicates  int
}

type rules struct {
	keys  []string
	names []string
}

var tradeRules = map[model.TradeType]rules{
	model.TradeImpHS:    {keys: []string{"CTY_CODE", "DISTRICT", "RP"}, names: []string{"DIST_NAME", "CTY_NAME"}},
	model.TradeExpHS:    {keys: []string{"CTY_CODE", "DISTRICT", "DF"}, names: []string{"DIST_NAME", "CTY_NAME"}},
	model.TradeImpPort:  {keys: []string{"PORT", "CTY_CODE"}, names: []string{"PORT_NAME", "CTY_NAME"}},
	model.TradeExpPort:  {keys: []string{"PORT", "CTY_CODE"}, names: []string{"PORT_NAME", "CTY_NAME"}},
	model.TradeImpState: {keys: []string{"CTY_CODE", "STATE"}, names: []string{"CTY_NAME"}},
	model.TradeExpState: {keys: []string{"CTY_CODE", "STATE"}, names: []string{"CTY_NAME"}},
}

var apiOnlyColumns = []string{catalog.ParamSummaryLevel, catalog.ParamCommodityLvl}

// Clean returns a cleaned copy of table. The input is not modified and
// cleaning an already cleaned table changes nothing.
func Clean(table *model.Table, tradeType model.TradeType) (*model.Table, Report, error) {
	if table == nil {
		return nil, Report{}, ErrNoTable
	}
	rule := tradeRules[tradeType]
	report := Report{Input: table.Len()}

	out := dropColumns(table)
	out = splitTime(out)

	keyIdx := indexes(out, rule.keys)
	measureIdx := measureColumns(out)
	commodityIdx := commodityColumn(out, tradeType)

	rows := make([][]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		if hasPlaceholder(row, keyIdx) {
			report.Placeholder++
			continue
		}
		if !coerceMeasures(row, measureIdx) {
			report.NonNumeric++
			continue
		}
		rows = append(rows, row)
	}

	if commodityIdx >= 0 {
		longest := 0
		for _, row := range rows {
			longest = max(longest, len(row[commodityIdx]))
		}
		kept := rows[:0]
		for _, row := range rows {
			if len(row[commodityIdx]) < longest {
				report.ShorterCode++
				continue
			}
			kept = append(kept, row)
		}
		rows = kept
	}

	seen := make(map[string]struct{}, len(rows))
	unique := rows[:0]
	for _, row := range rows {
		key := strings.Join(row, "\x1f")
		if _, ok := seen[key]; ok {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, row)
	}
	rows = unique

	sortIdx := indexes(out, append([]string{ColumnYear, ColumnMonth}, sortColumns(tradeType, rule)...))
	slices.SortStableFunc(rows, func(a, b []string) int {
		for _, idx := range sortIdx {
			if c := strings.Compare(a[idx], b[idx]); c != 0 {
				return c
			}
		}
		return 0
	})

	out.Rows = rows
	report.Output = len(rows)
	return out, report, nil
}

// dropColumns copies table without API-only columns and without repeated
// column names, keeping the first occurrence.
func dropColumns(table *model.Table) *model.Table {
	keep := make([]int, 0, len(table.Columns))
	columns := make([]string, 0, len(table.Columns))
	for i, column := range table.Columns {
		if slices.Contains(apiOnlyColumns, column) || slices.Contains(columns, column) {
			continue
		}
		keep = append(keep, i)
		columns = append(columns, column)
	}

	out := model.NewTable(columns)
	out.Rows = make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		copied := make([]string, len(keep))
		for j, idx := range keep {
			if idx < len(row) {
				copied[j] = strings.TrimSpace(row[idx])
			}
		}
		out.Rows = append(out.Rows, copied)
	}
	return out
}

// splitTime replaces the time column (YYYY-MM) with YEAR and MONTH columns.
func splitTime(table *model.Table) *model.Table {
	timeIdx := table.Index(catalog.ParamTime)
	if timeIdx < 0 {
		return table
	}

	columns := slices.Delete(slices.Clone(table.Columns), timeIdx, timeIdx+1)
	out := model.NewTable(append(columns, ColumnYear, ColumnMonth))
	out.Rows = make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		year, month, _ := strings.Cut(row[timeIdx], "-")
		copied := slices.Delete(slices.Clone(row), timeIdx, timeIdx+1)
		out.Rows = append(out.Rows, append(copied, year, month))
	}
	return out
}

func hasPlaceholder(row []string, idx []int) bool {
	for _, i := range idx {
		switch row[i] {
		case "", "-", "00":
			return true
		}
	}
	return false
}

// coerceMeasures rewrites measure cells in canonical decimal form. Empty cells
// are left alone; any other unparsable cell rejects the row.
func coerceMeasures(row []string, idx []int) bool {
	for _, i := range idx {
		if row[i] == "" {
			continue
		}
		value, err := decimal.NewFromString(row[i])
		if err != nil {
			return false
		}
		row[i] = value.String()
	}
	return true
}

func measureColumns(table *model.Table) []int {
	idx := make([]int, 0)
	for i, column := range table.Columns {
		if strings.HasSuffix(column, "_YR") && !strings.Contains(column, "_FLAG") {
			idx = append(idx, i)
		}
	}
	return idx
}

func commodityColumn(table *model.Table, tradeType model.TradeType) int {
	return table.Index(catalog.CommodityParam(tradeType.Flow()))
}

func sortColumns(tradeType model.TradeType, rule rules) []string {
	columns := []string{catalog.CommodityParam(tradeType.Flow())}
	return append(columns, rule.names...)
}

func indexes(table *model.Table, columns []string) []int {
	idx := make([]int, 0, len(columns))
	for _, column := range columns {
		if i := table.Index(column); i >= 0 {
			idx = append(idx, i)
		}
	}
	return idx
}
