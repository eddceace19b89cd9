package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// attrsFromKeyvals converts an alternating key, value, key, value... slice
// into OTEL attributes, coercing values to string via fmt for anything that
// isn't already a primitive OTEL supports natively. Malformed (odd-length)
// input silently drops the trailing key, matching the teacher's tolerant
// structured-logging keyvals convention.
func attrsFromKeyvals(keyvals []any) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, _ := keyvals[i].(string)
		if key == "" {
			continue
		}
		out = append(out, attributeFor(key, keyvals[i+1]))
	}
	return out
}

func attributeFor(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case error:
		if v == nil {
			return attribute.String(key, "")
		}
		return attribute.String(key, v.Error())
	default:
		return attribute.String(key, toString(v))
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}
