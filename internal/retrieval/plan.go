package retrieval

import (
	"fmt"
	"net/url"
	"strings"

	"tradequery/internal/catalog"
	"tradequery/internal/model"
)

// SubQuery is one planned API call.
type SubQuery struct {
	Index  int
	Period model.Period
	Params url.Values
}

// Plan is the ordered list of calls a retrieval will make.
type Plan struct {
	Endpoint   string
	TradeType  model.TradeType
	SubQueries []SubQuery
}

func (p Plan) Len() int {
	return len(p.SubQueries)
}

// Plan decomposes a query into one call per period and per combination of
// filter chunks. Periods vary slowest; chunks follow filter order, then input
// order.
func (o *Orchestrator) Plan(spec model.QuerySpec, periods []model.Period, filters []model.CodeFilter) (Plan, error) {
	if strings.TrimSpace(spec.BaseURL) == "" {
		return Plan{}, fmt.Errorf("%w: query has no endpoint", ErrInvalidPlan)
	}
	if len(periods) == 0 {
		return Plan{}, fmt.Errorf("%w: no periods", ErrInvalidPlan)
	}

	groups := make([][]url.Values, 0, len(filters))
	for _, filter := range filters {
		if filter.Param == "" {
			return Plan{}, fmt.Errorf("%w: filter %s has no parameter name", ErrInvalidPlan, filter.Dimension)
		}
		groups = append(groups, o.filterChunks(filter))
	}
	combos := cartesian(groups)

	plan := Plan{
		Endpoint:   spec.BaseURL,
		TradeType:  spec.TradeType,
		SubQueries: make([]SubQuery, 0, len(periods)*len(combos)),
	}
	for _, period := range periods {
		for _, combo := range combos {
			params := spec.Params()
			for name, values := range combo {
				params[name] = append([]string(nil), values...)
			}
			params.Set(catalog.ParamTime, period.String())
			plan.SubQueries = append(plan.SubQueries, SubQuery{
				Index:  len(plan.SubQueries),
				Period: period,
				Params: params,
			})
		}
	}
	return plan, nil
}

// filterChunks returns the parameter sets a single filter contributes. A
// wildcard filter contributes one set holding the wildcard token, or nothing
// when the token is empty.
func (o *Orchestrator) filterChunks(filter model.CodeFilter) []url.Values {
	if filter.Wildcard || len(filter.Values) == 0 {
		if o.wildcard == "" {
			return []url.Values{{}}
		}
		return []url.Values{{filter.Param: {o.wildcard}}}
	}

	chunks := make([]url.Values, 0, (len(filter.Values)+o.chunkSize-1)/o.chunkSize)
	for start := 0; start < len(filter.Values); start += o.chunkSize {
		end := min(start+o.chunkSize, len(filter.Values))
		values := append([]string(nil), filter.Values[start:end]...)
		chunks = append(chunks, url.Values{filter.Param: values})
	}
	return chunks
}

func cartesian(groups [][]url.Values) []url.Values {
	combos := []url.Values{{}}
	for _, group := range groups {
		next := make([]url.Values, 0, len(combos)*len(group))
		for _, combo := range combos {
			for _, part := range group {
				merged := make(url.Values, len(combo)+len(part))
				for name, values := range combo {
					merged[name] = values
				}
				for name, values := range part {
					merged[name] = values
				}
				next = append(next, merged)
			}
		}
		combos = next
	}
	return combos
}
