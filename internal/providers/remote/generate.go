package remote

import (
	"context"
	"net/http"

	"easel/internal/logging"
	"easel/internal/services"
)

// GenerateRequest carries one generation to a remote provider.
type GenerateRequest struct {
	ModelID string
	Params  map[string]any
	// ReferenceImages are local file paths uploaded before submission.
	ReferenceImages []string
}

// ProgressFunc receives polling phase updates.
type ProgressFunc func(phase string)

// Generate submits a generation request and returns the provider's
// artifact references. Synchronous providers answer with outputs directly;
// asynchronous ones return a request id that is polled to completion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest, progress ProgressFunc) ([]Output, error) {
	if progress == nil {
		progress = func(string) {}
	}

	params := make(map[string]any, len(req.Params)+2)
	for key, value := range req.Params {
		params[key] = value
	}

	if len(req.ReferenceImages) > 0 {
		uploaded := make([]string, 0, len(req.ReferenceImages))
		for _, path := range req.ReferenceImages {
			remoteURL, err := c.UploadFile(ctx, path)
			if err != nil {
				return nil, err
			}
			uploaded = append(uploaded, remoteURL)
		}
		// Only fill the conventional slots when the caller left them empty.
		if _, ok := params["image_url"]; !ok && len(uploaded) == 1 {
			params["image_url"] = uploaded[0]
		}
		if _, ok := params["image_urls"]; !ok && len(uploaded) > 1 {
			params["image_urls"] = uploaded
		}
	}

	requestURL, err := c.buildURL(c.provider.Endpoints.Request, map[string]string{
		"model": req.ModelID,
	})
	if err != nil {
		return nil, err
	}

	progress("submitted")
	doc, _, err := c.doJSON(ctx, http.MethodPost, requestURL, params)
	if err != nil {
		return nil, err
	}

	if !c.provider.Async.Enabled() {
		outputs := c.outputsFromDocument(doc)
		if len(outputs) == 0 {
			return nil, services.Wrap(services.ErrNoOutput, "remote", "generate",
				"provider response contained no artifacts", nil)
		}
		return outputs, nil
	}

	requestID, ok := lookupString(doc, c.provider.Async.RequestIDPath)
	if !ok {
		return nil, services.Wrap(services.ErrTransient, "remote", "generate",
			"submission response missing request id at "+c.provider.Async.RequestIDPath, nil)
	}
	c.logger.Debug("generation submitted",
		logging.String("request_id", requestID),
		logging.String("model", req.ModelID))

	return c.poll(ctx, req.ModelID, requestID, progress)
}

// outputsFromDocument extracts artifacts from a response, preferring the
// provider's configured outputs path over heuristic normalization.
func (c *Client) outputsFromDocument(doc map[string]any) []Output {
	if path := c.provider.Async.OutputsPath; path != "" {
		if node, ok := lookupPath(doc, path); ok {
			if outputs := normalizeOutputs(node); len(outputs) > 0 {
				return outputs
			}
		}
	}
	return normalizeOutputs(doc)
}
