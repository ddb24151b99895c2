package dimension

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradequery/internal/catalog"
	"tradequery/internal/model"
	"tradequery/internal/reference"
)

func newTestCollector(t *testing.T) (*Collector, *bytes.Buffer) {
	t.Helper()
	tables, err := reference.Default()
	require.NoError(t, err)

	withConcordance := *tables
	withConcordance.Concordance = reference.NewConcordance(
		[]reference.Entry{
			{Code: "0901210010", Name: "Coffee, roasted, in packages"},
			{Code: "0901210020", Name: "Coffee, roasted, other"},
			{Code: "8517130000", Name: "Smartphones"},
		},
		[]reference.Entry{
			{Code: "0901110000", Name: "Coffee, not roasted"},
		},
	)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	return NewCollector(&withConcordance, logger), &buf
}

func endpoint(t *testing.T, flow model.Flow, dim model.Dimension) catalog.Endpoint {
	t.Helper()
	ep, err := catalog.New("").Resolve(flow, dim)
	require.NoError(t, err)
	return ep
}

func TestCollectPortByName(t *testing.T) {
	collector, logs := newTestCollector(t)
	ep := endpoint(t, model.FlowImport, model.DimPort)

	filters, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimPort: {"BALTIMORE, MD"}},
	})
	require.NoError(t, err)
	require.Len(t, filters, 3)

	assert.Equal(t, model.DimCommodity, filters[0].Dimension)
	assert.True(t, filters[0].Wildcard)
	assert.True(t, filters[1].Wildcard)
	assert.Equal(t, model.CodeFilter{Dimension: model.DimPort, Param: "PORT", Values: []string{"1303"}}, filters[2])
	assert.Contains(t, logs.String(), "1303")
}

func TestCollectDeduplicatesCodes(t *testing.T) {
	collector, _ := newTestCollector(t)
	ep := endpoint(t, model.FlowExport, model.DimCommodity)

	filters, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{
			model.DimCountry:  {"CANADA", "1220", " mexico "},
			model.DimDistrict: {"13"},
		},
	})
	require.NoError(t, err)
	require.Len(t, filters, 3)
	assert.Equal(t, []string{"1220", "2010"}, filters[1].Values)
	assert.False(t, filters[1].Wildcard)
	assert.Equal(t, []string{"13"}, filters[2].Values)
}

func TestCollectStateAcceptsNameOrAbbreviation(t *testing.T) {
	collector, _ := newTestCollector(t)
	ep := endpoint(t, model.FlowExport, model.DimState)

	filters, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimState: {"md", "Virginia"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"MD", "VA"}, filters[2].Values)
}

func TestCollectCommodity(t *testing.T) {
	collector, _ := newTestCollector(t)
	ep := endpoint(t, model.FlowImport, model.DimCommodity)

	filters, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimCommodity: {"8517130000", "85*", "smartphones"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"8517130000", "85*"}, filters[0].Values)

	filters, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values:  map[model.Dimension][]string{model.DimCommodity: {"coffee"}},
		HSLevel: 6,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"090121"}, filters[0].Values)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimCommodity: {"coffee"}},
	})
	assert.ErrorIs(t, err, ErrAmbiguousCode)
	var resolveErr *ResolveError
	require.ErrorAs(t, err, &resolveErr)
	assert.Len(t, resolveErr.Candidates, 2)
	assert.Equal(t, "coffee", resolveErr.Input)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimCommodity: {"123"}},
	})
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values:  map[model.Dimension][]string{model.DimCommodity: {"coffee"}},
		HSLevel: 8,
	})
	assert.ErrorIs(t, err, ErrInvalidHSLevel)
}

func TestCollectPortEndpointRejectsLongCodes(t *testing.T) {
	collector, _ := newTestCollector(t)
	ep := endpoint(t, model.FlowImport, model.DimPort)

	_, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimCommodity: {"8517130000"}},
	})
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values:  map[model.Dimension][]string{model.DimCommodity: {"smartphones"}},
		HSLevel: 10,
	})
	assert.ErrorIs(t, err, ErrInvalidHSLevel)
}

func TestCollectErrors(t *testing.T) {
	collector, _ := newTestCollector(t)
	ep := endpoint(t, model.FlowImport, model.DimPort)

	_, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimState: {"MD"}},
	})
	assert.ErrorIs(t, err, ErrNotApplicable)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimPort: {"atlantis"}},
	})
	assert.ErrorIs(t, err, ErrUnknownCode)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimPort: {"BALTIMORE"}},
	})
	assert.ErrorIs(t, err, ErrAmbiguousCode)
	assert.Contains(t, err.Error(), "1305")

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimCountry: {"korea"}},
	})
	assert.ErrorIs(t, err, ErrAmbiguousCode)

	// empty values are ignored rather than rejected
	filters, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimState: {" "}},
	})
	require.NoError(t, err)
	assert.Len(t, filters, 3)
}

func TestCollectRequiredFilter(t *testing.T) {
	collector, _ := newTestCollector(t)
	specs := []catalog.DimensionSpec{{Dimension: model.DimPort, Param: "PORT"}}

	_, err := collector.Collect(model.TradeImpPort, specs, Input{})
	assert.ErrorIs(t, err, ErrFilterRequired)
}

func TestCollectWithoutConcordance(t *testing.T) {
	tables, err := reference.Default()
	require.NoError(t, err)
	collector := NewCollector(tables, nil)
	ep := endpoint(t, model.FlowImport, model.DimCommodity)

	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimCommodity: {"coffee"}},
	})
	assert.ErrorIs(t, err, ErrUnknownCode)
}

func TestCollectWellFormedCodesOutsideReference(t *testing.T) {
	collector, logs := newTestCollector(t)
	ep := endpoint(t, model.FlowExport, model.DimPort)

	filters, err := collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{
			model.DimCountry: {"4621", "9999"},
			model.DimPort:    {"PORT EVERGLADES, FL", "8888"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4621", "9999"}, filters[1].Values)
	assert.Equal(t, []string{"5203", "8888"}, filters[2].Values)
	assert.Contains(t, logs.String(), "code not in reference table")
	assert.Contains(t, logs.String(), "9999")

	hs := endpoint(t, model.FlowImport, model.DimCommodity)
	filters, err = collector.Collect(hs.TradeType, hs.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimDistrict: {"99"}, model.DimCountry: {"RUSSIA"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"4621"}, filters[1].Values)
	assert.Equal(t, []string{"99"}, filters[2].Values)

	// malformed codes still go through name lookup
	_, err = collector.Collect(ep.TradeType, ep.Dimensions, Input{
		Values: map[model.Dimension][]string{model.DimPort: {"52030"}},
	})
	assert.ErrorIs(t, err, ErrUnknownCode)
}
