package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Flow is the trade direction.
type Flow string

const (
	FlowExport Flow = "export"
	FlowImport Flow = "import"
)

// Dimension is a facet trade data can be aggregated or filtered by.
type Dimension string

const (
	DimCommodity Dimension = "commodity"
	DimCountry   Dimension = "country"
	DimDistrict  Dimension = "district"
	DimPort      Dimension = "port"
	DimState     Dimension = "state"
)

// TradeType identifies one (flow, endpoint family) query family.
type TradeType string

const (
	TradeImpHS    TradeType = "imp_hs"
	TradeImpPort  TradeType = "imp_port"
	TradeImpState TradeType = "imp_st"
	TradeExpHS    TradeType = "exp_hs"
	TradeExpPort  TradeType = "exp_port"
	TradeExpState TradeType = "exp_st"
)

// TradeTypes lists every trade type in a stable order.
var TradeTypes = []TradeType{
	TradeImpHS, TradeImpPort, TradeImpState,
	TradeExpHS, TradeExpPort, TradeExpState,
}

// TradeTypeFor maps a flow and an aggregation dimension to its trade type.
// Only dimensions with their own endpoint family have one.
func TradeTypeFor(flow Flow, dim Dimension) (TradeType, bool) {
	switch flow {
	case FlowImport:
		switch dim {
		case DimCommodity:
			return TradeImpHS, true
		case DimPort:
			return TradeImpPort, true
		case DimState:
			return TradeImpState, true
		}
	case FlowExport:
		switch dim {
		case DimCommodity:
			return TradeExpHS, true
		case DimPort:
			return TradeExpPort, true
		case DimState:
			return TradeExpState, true
		}
	}
	return "", false
}

// Flow reports the trade direction of the trade type.
func (t TradeType) Flow() Flow {
	if strings.HasPrefix(string(t), "imp_") {
		return FlowImport
	}
	return FlowExport
}

func ParseFlow(value string) (Flow, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "i", "imp", "import", "imports":
		return FlowImport, nil
	case "e", "exp", "export", "exports":
		return FlowExport, nil
	default:
		return "", fmt.Errorf("unknown flow: %s", value)
	}
}

func ParseDimension(value string) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "h", "hs", "code", "hs code", "commodity":
		return DimCommodity, nil
	case "p", "port", "ports":
		return DimPort, nil
	case "s", "st", "state", "states":
		return DimState, nil
	case "country", "cty", "countries":
		return DimCountry, nil
	case "district", "dist", "districts":
		return DimDistrict, nil
	default:
		return "", fmt.Errorf("unknown dimension: %s", value)
	}
}

// Period is a single calendar year queried with the Census time predicate.
type Period struct {
	Year int
}

func (p Period) String() string {
	return fmt.Sprintf("%04d", p.Year)
}

// CodeFilter restricts one dimension to a list of provider codes. Wildcard is
// set only when Values is empty.
type CodeFilter struct {
	Dimension Dimension
	Param     string
	Values    []string
	Wildcard  bool
}

// QuerySpec is the resolved endpoint and its base parameters. The parameter
// set is copied on the way in and on the way out, so a spec never changes
// after it has been built.
type QuerySpec struct {
	BaseURL   string
	TradeType TradeType
	params    url.Values
}

func NewQuerySpec(baseURL string, tradeType TradeType, params url.Values) QuerySpec {
	return QuerySpec{
		BaseURL:   baseURL,
		TradeType: tradeType,
		params:    cloneValues(params),
	}
}

// Params returns a copy of the base parameters.
func (q QuerySpec) Params() url.Values {
	return cloneValues(q.params)
}

// Param returns the first value of a base parameter.
func (q QuerySpec) Param(name string) string {
	return q.params.Get(name)
}

func cloneValues(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for key, items := range values {
		copied := make([]string, len(items))
		copy(copied, items)
		out[key] = copied
	}
	return out
}

// ParseYear accepts a positive four-digit year.
func ParseYear(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if len(value) != 4 || !isDigits(value) {
		return 0, false
	}
	year, err := strconv.Atoi(value)
	if err != nil || year <= 0 {
		return 0, false
	}
	return year, true
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
