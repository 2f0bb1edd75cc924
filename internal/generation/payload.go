package generation

import (
	"encoding/json"
	"strings"

	"easel/internal/services"
)

// payload is the work item body the queue carries between Submit and the
// handlers. The queue itself treats it as opaque text.
type payload struct {
	GenerationID string         `json:"generationId"`
	EndpointKey  string         `json:"endpointKey"`
	Params       map[string]any `json:"params"`
}

func encodePayload(p payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodePayload fails fast on malformed work items so a bad payload becomes
// a failed item, never a crashed handler.
func decodePayload(raw string) (payload, error) {
	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return payload{}, services.Wrap(services.ErrValidation, "generation", "payload",
			"malformed work item payload", err)
	}
	if strings.TrimSpace(p.GenerationID) == "" || strings.TrimSpace(p.EndpointKey) == "" {
		return payload{}, services.Wrap(services.ErrValidation, "generation", "payload",
			"work item payload missing generationId or endpointKey", nil)
	}
	return p, nil
}

func stringParam(params map[string]any, key string) string {
	if value, ok := params[key].(string); ok {
		return value
	}
	return ""
}

func intParam(params map[string]any, key string) int64 {
	switch value := params[key].(type) {
	case int:
		return int64(value)
	case int64:
		return value
	case float64:
		return int64(value)
	}
	return 0
}

func floatParam(params map[string]any, key string) float64 {
	switch value := params[key].(type) {
	case float64:
		return value
	case int:
		return float64(value)
	case int64:
		return float64(value)
	}
	return 0
}
