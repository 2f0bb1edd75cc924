package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"easel/internal/logging"
	"easel/internal/services"
)

// poll drives the asynchronous request to a terminal state. It gives up
// after the configured deadline; a provider-reported failure surfaces the
// provider's error text.
func (c *Client) poll(ctx context.Context, modelID, requestID string, progress ProgressFunc) ([]Output, error) {
	requestURL, err := c.buildURL(c.provider.Endpoints.Poll, map[string]string{
		"model":      modelID,
		"request_id": requestID,
	})
	if err != nil {
		return nil, err
	}

	deadline := c.clock.Now().Add(c.pollDeadline)
	progress("polling")

	for {
		doc, _, err := c.doJSON(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}

		status, _ := lookupString(doc, c.provider.Async.StatusPath)
		switch {
		case statusMatches(status, c.provider.Async.CompletedValue, "completed"):
			outputs := c.outputsFromDocument(doc)
			if len(outputs) == 0 {
				return nil, services.Wrap(services.ErrNoOutput, "remote", "poll",
					"request "+requestID+" completed without artifacts", nil)
			}
			return outputs, nil
		case statusMatches(status, c.provider.Async.FailedValue, "failed"):
			reason := "provider reported failure"
			if text, ok := lookupString(doc, c.provider.Async.ErrorPath); ok {
				reason = text
			}
			return nil, services.Wrap(services.ErrTransient, "remote", "poll",
				fmt.Sprintf("request %s failed: %s", requestID, reason), nil)
		}

		if !c.clock.Now().Add(c.pollInterval).Before(deadline) {
			c.logger.Warn("polling deadline exceeded",
				logging.String("request_id", requestID),
				logging.Duration("deadline", c.pollDeadline))
			return nil, services.Wrap(services.ErrTransient, "remote", "poll",
				fmt.Sprintf("request %s did not finish within %s", requestID, c.pollDeadline), nil)
		}
		if err := c.clock.Sleep(ctx, c.pollInterval); err != nil {
			return nil, err
		}
	}
}

func statusMatches(status, configured, fallback string) bool {
	if status == "" {
		return false
	}
	want := configured
	if want == "" {
		want = fallback
	}
	return strings.EqualFold(status, want)
}
