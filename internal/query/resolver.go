package query

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"tradequery/internal/catalog"
	"tradequery/internal/model"
)

const apiKeyLength = 40

var (
	ErrUnsupportedSelection = errors.New("query: unsupported selection")
	ErrInvalidAPIKey        = errors.New("query: api key must be 40 characters")
)

// Selection is what the user picked before any filter values are collected.
type Selection struct {
	Flow      model.Flow
	Dimension model.Dimension
	APIKey    string
}

type Resolver struct {
	catalog *catalog.Catalog
}

func NewResolver(cat *catalog.Catalog) *Resolver {
	if cat == nil {
		cat = catalog.New("")
	}
	return &Resolver{catalog: cat}
}

// Resolve builds the query spec for a selection. The endpoint is returned
// alongside so callers know which dimensions can be filtered.
func (r *Resolver) Resolve(sel Selection) (model.QuerySpec, catalog.Endpoint, error) {
	endpoint, err := r.catalog.Resolve(sel.Flow, sel.Dimension)
	if err != nil {
		if errors.Is(err, catalog.ErrNotSupported) {
			return model.QuerySpec{}, catalog.Endpoint{}, fmt.Errorf("%w: %w", ErrUnsupportedSelection, err)
		}
		return model.QuerySpec{}, catalog.Endpoint{}, err
	}

	key := strings.TrimSpace(sel.APIKey)
	if key != "" && len(key) != apiKeyLength {
		return model.QuerySpec{}, catalog.Endpoint{}, ErrInvalidAPIKey
	}

	params := url.Values{}
	for _, param := range endpoint.Required {
		params.Set(param.Name, param.Value)
	}
	if key != "" {
		params.Set(catalog.ParamKey, key)
	}

	return model.NewQuerySpec(endpoint.BaseURL, endpoint.TradeType, params), endpoint, nil
}
