package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"tradequery/internal/model"
)

const (
	DefaultBaseURL = "https://api.census.gov/data/timeseries/intltrade"

	ParamGet          = "get"
	ParamSummaryLevel = "SUMMARY_LVL"
	ParamCommodityLvl = "COMM_LVL"
	ParamKey          = "key"
	ParamTime         = "time"

	summaryDetail = "DET"
)

var ErrNotSupported = errors.New("catalog: combination not supported")

var (
	hsCodePattern   = regexp.MustCompile(`^(\d{2}|\d{4}|\d{6})\*?$|^\d{10}$`)
	portCodePattern = regexp.MustCompile(`^(\d{2}|\d{4})\*?$|^\d{6}$`)

	dimensionPatterns = map[model.Dimension]*regexp.Regexp{
		model.DimCountry:  regexp.MustCompile(`^\d{4}$`),
		model.DimDistrict: regexp.MustCompile(`^\d{2}$`),
		model.DimPort:     regexp.MustCompile(`^\d{4}$`),
	}
)

// Param is a parameter name with its fixed value.
type Param struct {
	Name  string
	Value string
}

// DimensionSpec describes how one filter dimension is sent to an endpoint.
type DimensionSpec struct {
	Dimension model.Dimension
	Param     string
	// Wildcard reports whether an unfiltered pull is allowed on this dimension.
	Wildcard bool
	// CodePattern matches well-formed explicit codes. Commodity codes are
	// only ever checked against it; for other dimensions a matching code is
	// accepted even when the reference table does not list it. Nil means
	// codes must exist in the reference table.
	CodePattern *regexp.Regexp
	// HSLevels lists the commodity code lengths accepted by the endpoint,
	// default first.
	HSLevels []int
}

// Endpoint is what a (flow, dimension) pair resolves to.
type Endpoint struct {
	TradeType  model.TradeType
	BaseURL    string
	Required   []Param
	Optional   []string
	Dimensions []DimensionSpec
}

// RequiredNames lists the names of the required parameters.
func (e Endpoint) RequiredNames() []string {
	names := make([]string, 0, len(e.Required))
	for _, param := range e.Required {
		names = append(names, param.Name)
	}
	return names
}

// Applies reports whether dim can be filtered on this endpoint.
func (e Endpoint) Applies(dim model.Dimension) (DimensionSpec, bool) {
	for _, spec := range e.Dimensions {
		if spec.Dimension == dim {
			return spec, true
		}
	}
	return DimensionSpec{}, false
}

type family struct {
	path     string
	variable map[model.Flow]string
	extra    model.Dimension
	levels   []int
	pattern  *regexp.Regexp
}

var families = map[model.TradeType]family{
	model.TradeImpHS:    {path: "imports/hs", extra: model.DimDistrict, levels: []int{10, 2, 4, 6}, pattern: hsCodePattern},
	model.TradeExpHS:    {path: "exports/hs", extra: model.DimDistrict, levels: []int{10, 2, 4, 6}, pattern: hsCodePattern},
	model.TradeImpPort:  {path: "imports/porths", extra: model.DimPort, levels: []int{6, 2, 4}, pattern: portCodePattern},
	model.TradeExpPort:  {path: "exports/porths", extra: model.DimPort, levels: []int{6, 2, 4}, pattern: portCodePattern},
	model.TradeImpState: {path: "imports/statehs", extra: model.DimState, levels: []int{6, 2, 4}, pattern: portCodePattern},
	model.TradeExpState: {path: "exports/statehs", extra: model.DimState, levels: []int{6, 2, 4}, pattern: portCodePattern},
}

var variables = map[model.TradeType]string{
	model.TradeImpHS:    "I_COMMODITY,I_COMMODITY_LDESC,CTY_CODE,CTY_NAME,DISTRICT,DIST_NAME,UNIT_QY1,UNIT_QY2,GEN_VAL_YR,GEN_QY1_YR,GEN_QY1_YR_FLAG,GEN_QY2_YR,GEN_QY2_YR_FLAG,GEN_CHA_YR,GEN_CIF_YR,CC_YR,RP,CAL_DUT_YR,DUT_VAL_YR,CNT_CHA_YR,CNT_VAL_YR,CNT_WGT_YR,VES_WGT_YR,VES_VAL_YR,VES_CHA_YR,AIR_WGT_YR,AIR_VAL_YR,AIR_CHA_YR",
	model.TradeImpPort:  "I_COMMODITY,I_COMMODITY_LDESC,PORT,PORT_NAME,CTY_CODE,CTY_NAME,GEN_VAL_YR,CNT_VAL_YR,CNT_WGT_YR,VES_VAL_YR,VES_WGT_YR,AIR_VAL_YR,AIR_WGT_YR",
	model.TradeExpHS:    "E_COMMODITY,E_COMMODITY_LDESC,DF,CTY_CODE,CTY_NAME,DISTRICT,DIST_NAME,UNIT_QY1,UNIT_QY2,ALL_VAL_YR,QTY_1_YR,QTY_1_YR_FLAG,QTY_2_YR,QTY_2_YR_FLAG,CNT_VAL_YR,CNT_WGT_YR,CC_YR,AIR_VAL_YR,AIR_WGT_YR,VES_VAL_YR,VES_WGT_YR",
	model.TradeExpPort:  "E_COMMODITY,E_COMMODITY_LDESC,PORT,PORT_NAME,CTY_CODE,CTY_NAME,ALL_VAL_YR,CNT_VAL_YR,CNT_WGT_YR,VES_VAL_YR,VES_WGT_YR,AIR_VAL_YR,AIR_WGT_YR",
	model.TradeImpState: "I_COMMODITY,I_COMMODITY_LDESC,STATE,CTY_NAME,CTY_CODE,GEN_VAL_YR,VES_VAL_YR,VES_WGT_YR,CNT_VAL_YR,CNT_WGT_YR,AIR_VAL_YR,AIR_WGT_YR",
	model.TradeExpState: "E_COMMODITY,E_COMMODITY_LDESC,STATE,CTY_NAME,CTY_CODE,ALL_VAL_YR,VES_VAL_YR,VES_WGT_YR,CNT_VAL_YR,CNT_WGT_YR,AIR_VAL_YR,AIR_WGT_YR",
}

var dimensionParams = map[model.Dimension]string{
	model.DimCountry:  "CTY_CODE",
	model.DimDistrict: "DISTRICT",
	model.DimPort:     "PORT",
	model.DimState:    "STATE",
}

// Catalog is static knowledge of the Census international trade endpoints.
type Catalog struct {
	baseURL string
}

func New(baseURL string) *Catalog {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Catalog{baseURL: strings.TrimRight(baseURL, "/")}
}

// Resolve looks up the endpoint for a flow and aggregation dimension.
func (c *Catalog) Resolve(flow model.Flow, dim model.Dimension) (Endpoint, error) {
	tradeType, ok := model.TradeTypeFor(flow, dim)
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: flow=%q dimension=%q", ErrNotSupported, flow, dim)
	}
	fam, ok := families[tradeType]
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: trade type %s", ErrNotSupported, tradeType)
	}

	return Endpoint{
		TradeType: tradeType,
		BaseURL:   c.baseURL + "/" + fam.path,
		Required: []Param{
			{Name: ParamGet, Value: variables[tradeType]},
			{Name: ParamSummaryLevel, Value: summaryDetail},
		},
		Optional: []string{ParamKey, ParamCommodityLvl},
		Dimensions: []DimensionSpec{
			{
				Dimension:   model.DimCommodity,
				Param:       CommodityParam(flow),
				Wildcard:    true,
				CodePattern: fam.pattern,
				HSLevels:    fam.levels,
			},
			{
				Dimension:   model.DimCountry,
				Param:       dimensionParams[model.DimCountry],
				Wildcard:    true,
				CodePattern: dimensionPatterns[model.DimCountry],
			},
			{
				Dimension:   fam.extra,
				Param:       dimensionParams[fam.extra],
				Wildcard:    true,
				CodePattern: dimensionPatterns[fam.extra],
			},
		},
	}, nil
}

// Supported lists every endpoint the catalog knows, in trade type order.
func (c *Catalog) Supported() []Endpoint {
	endpoints := make([]Endpoint, 0, len(model.TradeTypes))
	for _, flow := range []model.Flow{model.FlowImport, model.FlowExport} {
		for _, dim := range []model.Dimension{model.DimCommodity, model.DimPort, model.DimState} {
			endpoint, err := c.Resolve(flow, dim)
			if err != nil {
				continue
			}
			endpoints = append(endpoints, endpoint)
		}
	}
	return endpoints
}

func CommodityParam(flow model.Flow) string {
	if flow == model.FlowImport {
		return "I_COMMODITY"
	}
	return "E_COMMODITY"
}
