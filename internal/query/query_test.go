package query

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradequery/internal/catalog"
	"tradequery/internal/model"
)

func TestResolveCarriesRequiredParams(t *testing.T) {
	resolver := NewResolver(catalog.New(""))
	key := strings.Repeat("k", 40)

	for _, endpoint := range catalog.New("").Supported() {
		flow := endpoint.TradeType.Flow()
		for _, dim := range []model.Dimension{model.DimCommodity, model.DimPort, model.DimState} {
			tradeType, _ := model.TradeTypeFor(flow, dim)
			if tradeType != endpoint.TradeType {
				continue
			}
			spec, resolved, err := resolver.Resolve(Selection{Flow: flow, Dimension: dim, APIKey: key})
			require.NoError(t, err)
			assert.Equal(t, endpoint.TradeType, spec.TradeType)
			assert.Equal(t, endpoint.BaseURL, spec.BaseURL)
			assert.Equal(t, endpoint.TradeType, resolved.TradeType)
			for _, param := range endpoint.Required {
				assert.Equal(t, param.Value, spec.Param(param.Name), param.Name)
			}
			assert.Equal(t, key, spec.Param(catalog.ParamKey))
		}
	}
}

func TestResolveWithoutKey(t *testing.T) {
	spec, _, err := NewResolver(nil).Resolve(Selection{Flow: model.FlowExport, Dimension: model.DimPort})
	require.NoError(t, err)
	_, present := spec.Params()[catalog.ParamKey]
	assert.False(t, present)
	assert.Equal(t, "DET", spec.Param(catalog.ParamSummaryLevel))
}

func TestResolveUnsupported(t *testing.T) {
	resolver := NewResolver(nil)
	for _, sel := range []Selection{
		{Flow: model.FlowImport, Dimension: model.DimCountry},
		{Flow: model.FlowExport, Dimension: model.DimDistrict},
		{Flow: "", Dimension: model.DimCommodity},
	} {
		_, _, err := resolver.Resolve(sel)
		assert.ErrorIs(t, err, ErrUnsupportedSelection)
		assert.ErrorIs(t, err, catalog.ErrNotSupported)
	}
}

func TestResolveRejectsShortKey(t *testing.T) {
	_, _, err := NewResolver(nil).Resolve(Selection{Flow: model.FlowImport, Dimension: model.DimCommodity, APIKey: "short"})
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestPeriods(t *testing.T) {
	tests := []struct {
		from, to string
		want     int
	}{
		{"2010", "2011", 2},
		{"2015", "2015", 1},
		{"1999", "2024", 26},
	}
	for _, tt := range tests {
		t.Run(tt.from+"-"+tt.to, func(t *testing.T) {
			periods, err := Periods(tt.from, tt.to)
			require.NoError(t, err)
			require.Len(t, periods, tt.want)
			for i := 1; i < len(periods); i++ {
				assert.Equal(t, periods[i-1].Year+1, periods[i].Year)
			}
			assert.Equal(t, tt.from, periods[0].String())
			assert.Equal(t, tt.to, periods[len(periods)-1].String())
		})
	}
}

func TestPeriodsCountProperty(t *testing.T) {
	for start := 1990; start <= 2000; start++ {
		for end := start; end <= 2005; end++ {
			periods, err := Periods(fmt.Sprint(start), fmt.Sprint(end))
			require.NoError(t, err)
			assert.Len(t, periods, end-start+1)
		}
	}
}

func TestPeriodsErrors(t *testing.T) {
	_, err := Periods("2020", "2010")
	assert.ErrorIs(t, err, ErrRangeInverted)

	for _, pair := range [][2]string{{"20", "2010"}, {"2010", "abcd"}, {"0000", "2010"}, {"", ""}, {"-2010", "2011"}} {
		_, err := Periods(pair[0], pair[1])
		assert.ErrorIs(t, err, ErrInvalidYear, pair)
	}
}
