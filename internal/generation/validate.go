package generation

import (
	"fmt"
	"strings"

	"easel/internal/catalog"
	"easel/internal/services"
)

// seedParam is owned by the service: Submit resolves it even for schemas
// that do not declare it, so validation never treats it as undeclared.
const seedParam = "seed"

// validateParams checks a submission against the endpoint's canonical
// schema: required fields present, no undeclared parameters, values of the
// declared type and within declared bounds. All problems are reported at
// once rather than one per round trip.
func validateParams(schema catalog.Schema, params map[string]any) error {
	var problems []string

	for _, name := range schema.Required {
		value, ok := params[name]
		if !ok || value == nil {
			problems = append(problems, fmt.Sprintf("%s is required", name))
			continue
		}
		if text, isString := value.(string); isString && strings.TrimSpace(text) == "" {
			problems = append(problems, fmt.Sprintf("%s is required", name))
		}
	}

	for name, value := range params {
		property, ok := schema.Properties[name]
		if !ok {
			if name == seedParam {
				continue
			}
			problems = append(problems, fmt.Sprintf("unknown parameter %s", name))
			continue
		}
		if value == nil {
			continue
		}
		if problem := checkType(name, property, value); problem != "" {
			problems = append(problems, problem)
			continue
		}
		if problem := checkBounds(name, property, value); problem != "" {
			problems = append(problems, problem)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "generation", "validate",
		strings.Join(problems, "; "), nil)
}

func checkType(name string, property catalog.Property, value any) string {
	switch property.Type {
	case catalog.TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Sprintf("%s must be a string", name)
		}
	case catalog.TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("%s must be a boolean", name)
		}
	case catalog.TypeInteger:
		number, ok := asNumber(value)
		if !ok || number != float64(int64(number)) {
			return fmt.Sprintf("%s must be an integer", name)
		}
	case catalog.TypeNumber:
		if _, ok := asNumber(value); !ok {
			return fmt.Sprintf("%s must be a number", name)
		}
	case catalog.TypeArray:
		if _, ok := value.([]any); !ok {
			return fmt.Sprintf("%s must be an array", name)
		}
	}
	return ""
}

func checkBounds(name string, property catalog.Property, value any) string {
	if len(property.Enum) > 0 {
		for _, allowed := range property.Enum {
			if fmt.Sprint(allowed) == fmt.Sprint(value) {
				return ""
			}
		}
		return fmt.Sprintf("%s must be one of the declared choices", name)
	}

	number, ok := asNumber(value)
	if !ok {
		return ""
	}
	if property.Minimum != nil && number < *property.Minimum {
		return fmt.Sprintf("%s must be at least %g", name, *property.Minimum)
	}
	if property.Maximum != nil && number > *property.Maximum {
		return fmt.Sprintf("%s must be at most %g", name, *property.Maximum)
	}
	return ""
}

func asNumber(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	}
	return 0, false
}
