// Package codec bridges the two naming conventions in play across this
// broker: the backend's camelCase wire format and the broker's internal
// snake_case schemas. The bijection is generated from mapping.toml (see
// mapping.go) and validated for uniqueness at package init, so a
// collision in the source-of-truth file fails fast at process start
// rather than corrupting round-trips silently.
package codec

// NormalizeKey returns the internal name for an external key, or the
// key unchanged if it carries no mapping.
func NormalizeKey(s string) string {
	if internal, ok := externalToInternal[s]; ok {
		return internal
	}
	return s
}

// DenormalizeKey is the symmetric inverse of NormalizeKey.
func DenormalizeKey(s string) string {
	if external, ok := internalToExternal[s]; ok {
		return external
	}
	return s
}

// NormalizeJSON walks a decoded JSON value (as produced by
// encoding/json.Unmarshal into interface{}), rewriting every object key
// at every depth via NormalizeKey and recursing into arrays. Primitives
// (strings, numbers, bools, nil) pass through unchanged.
func NormalizeJSON(v interface{}) interface{} {
	return walk(v, NormalizeKey)
}

// DenormalizeJSON is the symmetric inverse of NormalizeJSON.
func DenormalizeJSON(v interface{}) interface{} {
	return walk(v, DenormalizeKey)
}

func walk(v interface{}, keyFn func(string) string) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[keyFn(k)] = walk(val, keyFn)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = walk(val, keyFn)
		}
		return out
	default:
		return v
	}
}
