package remote

import (
	"context"
	"net/http"
	"net/url"

	"easel/internal/catalog"
	"easel/internal/logging"
)

var searchEnvelopeKeys = []string{"models", "results", "items", "data"}

// SearchModels queries the provider's model search endpoint and normalizes
// each hit through the provider's adapter. Unrecognizable entries are
// skipped rather than failing the whole search.
func (c *Client) SearchModels(ctx context.Context, query string) ([]catalog.ModelSummary, error) {
	requestURL, err := c.buildURL(c.provider.Endpoints.Search, map[string]string{
		"query": query,
	})
	if err != nil {
		return nil, err
	}
	if parsed, parseErr := url.Parse(requestURL); parseErr == nil && parsed.RawQuery == "" && query != "" {
		values := url.Values{}
		values.Set("query", query)
		parsed.RawQuery = values.Encode()
		requestURL = parsed.String()
	}

	doc, list, err := c.doJSON(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	if list == nil && doc != nil {
		for _, key := range searchEnvelopeKeys {
			if inner, ok := doc[key].([]any); ok {
				list = inner
				break
			}
		}
	}

	adapter, recognized := catalog.AdapterFor(c.provider.Adapter)
	if !recognized {
		c.logger.Warn("unknown adapter tag, using generic normalization",
			logging.String("adapter", c.provider.Adapter))
	}

	summaries := make([]catalog.ModelSummary, 0, len(list))
	for _, entry := range list {
		doc, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		summary, ok := adapter.NormalizeSearchResult(doc)
		if !ok {
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
