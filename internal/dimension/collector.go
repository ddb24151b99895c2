package dimension

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"tradequery/internal/catalog"
	"tradequery/internal/logging"
	"tradequery/internal/model"
	"tradequery/internal/reference"
)

var (
	ErrUnknownCode    = errors.New("dimension: no matching code")
	ErrAmbiguousCode  = errors.New("dimension: more than one matching code")
	ErrNotApplicable  = errors.New("dimension: filter not applicable to endpoint")
	ErrFilterRequired = errors.New("dimension: filter values required")
	ErrInvalidHSLevel = errors.New("dimension: hs level not accepted by endpoint")
)

// ResolveError reports a raw value that did not resolve to exactly one code.
type ResolveError struct {
	Dimension  model.Dimension
	Input      string
	Candidates []reference.Entry
	Err        error
}

func (e *ResolveError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("%s %q: %v", e.Dimension, e.Input, e.Err)
	}
	names := make([]string, 0, len(e.Candidates))
	for _, candidate := range e.Candidates {
		names = append(names, candidate.Code+" "+candidate.Name)
	}
	return fmt.Sprintf("%s %q: %v (%s)", e.Dimension, e.Input, e.Err, strings.Join(names, "; "))
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Input is the raw, already-typed filter input for one retrieval.
type Input struct {
	Values map[model.Dimension][]string
	// HSLevel truncates commodity codes found by name; 0 selects the
	// endpoint default.
	HSLevel int
}

type Collector struct {
	tables *reference.Tables
	logger logrus.FieldLogger
}

func NewCollector(tables *reference.Tables, logger logrus.FieldLogger) *Collector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Collector{
		tables: tables,
		logger: logger.WithField("component", "dimension"),
	}
}

// Collect turns raw input into one filter per applicable dimension, in
// endpoint order. Dimensions without input become wildcard filters.
func (c *Collector) Collect(tradeType model.TradeType, applicable []catalog.DimensionSpec, in Input) ([]model.CodeFilter, error) {
	for dim, values := range in.Values {
		if len(nonEmpty(values)) == 0 {
			continue
		}
		if !slices.ContainsFunc(applicable, func(spec catalog.DimensionSpec) bool { return spec.Dimension == dim }) {
			return nil, fmt.Errorf("%w: %s on %s", ErrNotApplicable, dim, tradeType)
		}
	}

	filters := make([]model.CodeFilter, 0, len(applicable))
	for _, spec := range applicable {
		raw := nonEmpty(in.Values[spec.Dimension])
		filter := model.CodeFilter{Dimension: spec.Dimension, Param: spec.Param}
		if len(raw) == 0 {
			if !spec.Wildcard {
				return nil, fmt.Errorf("%w: %s on %s", ErrFilterRequired, spec.Dimension, tradeType)
			}
			filter.Wildcard = true
			filters = append(filters, filter)
			continue
		}

		codes := make([]string, 0, len(raw))
		for _, value := range raw {
			code, err := c.resolve(tradeType, spec, value, in.HSLevel)
			if err != nil {
				return nil, err
			}
			if !slices.Contains(codes, code) {
				codes = append(codes, code)
			}
		}
		filter.Values = codes
		c.logger.WithFields(logrus.Fields{
			"dimension": spec.Dimension,
			"codes":     strings.Join(codes, ","),
		}).Info("resolved filter codes")
		filters = append(filters, filter)
	}
	return filters, nil
}

func (c *Collector) resolve(tradeType model.TradeType, spec catalog.DimensionSpec, value string, level int) (string, error) {
	if spec.Dimension == model.DimCommodity {
		return c.resolveCommodity(tradeType, spec, value, level)
	}

	table, ok := c.tableFor(spec.Dimension)
	if ok && table.HasCode(value) {
		return normalizeCode(spec.Dimension, value), nil
	}
	if spec.CodePattern != nil && spec.CodePattern.MatchString(value) {
		c.logger.WithFields(logrus.Fields{
			"dimension": spec.Dimension,
			"code":      value,
		}).Warn("code not in reference table, sending as given")
		return value, nil
	}
	if !ok {
		return "", &ResolveError{Dimension: spec.Dimension, Input: value, Err: ErrUnknownCode}
	}
	return pickOne(spec.Dimension, value, table.Find(value))
}

func (c *Collector) resolveCommodity(tradeType model.TradeType, spec catalog.DimensionSpec, value string, level int) (string, error) {
	if spec.CodePattern != nil && spec.CodePattern.MatchString(value) {
		return value, nil
	}
	if isCodeLike(value) {
		return "", &ResolveError{Dimension: spec.Dimension, Input: value, Err: fmt.Errorf("%w: malformed commodity code", ErrUnknownCode)}
	}

	if level == 0 && len(spec.HSLevels) > 0 {
		level = spec.HSLevels[0]
	}
	if len(spec.HSLevels) > 0 && !slices.Contains(spec.HSLevels, level) {
		return "", fmt.Errorf("%w: %d on %s", ErrInvalidHSLevel, level, tradeType)
	}
	if c.tables == nil || c.tables.Concordance == nil {
		return "", &ResolveError{Dimension: spec.Dimension, Input: value, Err: fmt.Errorf("%w: no concordance loaded", ErrUnknownCode)}
	}
	return pickOne(spec.Dimension, value, c.tables.Concordance.Search(tradeType.Flow(), value, level))
}

func (c *Collector) tableFor(dim model.Dimension) (*reference.Table, bool) {
	if c.tables == nil {
		return nil, false
	}
	return c.tables.For(dim)
}

func pickOne(dim model.Dimension, value string, matches []reference.Entry) (string, error) {
	switch len(matches) {
	case 0:
		return "", &ResolveError{Dimension: dim, Input: value, Err: ErrUnknownCode}
	case 1:
		return matches[0].Code, nil
	default:
		return "", &ResolveError{Dimension: dim, Input: value, Candidates: matches, Err: ErrAmbiguousCode}
	}
}

func normalizeCode(dim model.Dimension, value string) string {
	value = strings.TrimSpace(value)
	if dim == model.DimState {
		return strings.ToUpper(value)
	}
	return value
}

func isCodeLike(value string) bool {
	for _, r := range value {
		if (r < '0' || r > '9') && r != '*' {
			return false
		}
	}
	return value != ""
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}
