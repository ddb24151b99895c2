package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradequery/internal/model"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func sampleTable() *model.Table {
	table := model.NewTable([]string{"PORT", "PORT_NAME", "YEAR", "MONTH"})
	table.Append(
		[]string{"1303", "BALTIMORE, MD", "2011", "01"},
		[]string{"1303", "BALTIMORE, MD", "2010", "12"},
		[]string{"1305", "BALTIMORE-WASHINGTON INTERNATIONAL AIRPORT, MD", "2010", "11"},
	)
	return table
}

func TestFileName(t *testing.T) {
	tests := []struct {
		label   string
		year    string
		cleaned bool
		want    string
	}{
		{"baltimore", "", false, "baltimore_exp_port_raw.csv"},
		{"", "", true, "exp_port_cleaned.csv"},
		{"BALTIMORE, MD", "2010", true, "BALTIMORE_MD_exp_port_2010_cleaned.csv"},
		{" ../etc ", "", false, "etc_exp_port_raw.csv"},
		{"???", "", false, "exp_port_raw.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.label, model.TradeExpPort, tt.year, tt.cleaned))
	}
}

func TestExportRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "saved_data")
	table := sampleTable()

	path, err := Export(table, model.TradeExpPort, dir, "baltimore", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "baltimore_exp_port_cleaned.csv"), path)

	records := readCSV(t, path)
	require.Len(t, records, 4)
	assert.Equal(t, table.Columns, records[0])
	assert.Equal(t, table.Rows, records[1:])
}

func TestExportEmptyTableWritesHeader(t *testing.T) {
	path, err := Export(model.NewTable([]string{"PORT"}), model.TradeImpPort, t.TempDir(), "", false)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"PORT"}}, readCSV(t, path))
}

func TestExportWithoutColumnsWritesEmptyFile(t *testing.T) {
	path, err := Export(&model.Table{}, model.TradeImpPort, t.TempDir(), "", false)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestExportByYear(t *testing.T) {
	dir := t.TempDir()
	paths, err := ExportByYear(sampleTable(), model.TradeExpPort, dir, "baltimore", false)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "baltimore_exp_port_2010_raw.csv"),
		filepath.Join(dir, "baltimore_exp_port_2011_raw.csv"),
	}, paths)
	assert.Len(t, readCSV(t, paths[0]), 3)
	assert.Len(t, readCSV(t, paths[1]), 2)

	raw := model.NewTable([]string{"PORT", "time"})
	raw.Append([]string{"1303", "2012-04"})
	paths, err = ExportByYear(raw, model.TradeImpPort, dir, "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "imp_port_2012_raw.csv")}, paths)

	_, err = ExportByYear(model.NewTable([]string{"PORT"}), model.TradeImpPort, dir, "", false)
	assert.ErrorIs(t, err, ErrNoYearColumn)
}

func TestExportWriteError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := Export(sampleTable(), model.TradeExpPort, filepath.Join(blocker, "sub"), "x", false)
	assert.ErrorIs(t, err, ErrWrite)

	_, err = Export(nil, model.TradeExpPort, t.TempDir(), "x", false)
	assert.ErrorIs(t, err, ErrWrite)
}
