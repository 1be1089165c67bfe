package engine

import (
	"fmt"
	"strconv"
)

// ArgString returns args[key] as a string. A missing key yields "" and no
// error; a value of another type is an error.
func ArgString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}

// ArgInt returns args[key] as an int, or def when the key is missing.
// JSON numbers decode as float64, so both float64 and numeric strings are
// accepted.
func ArgInt(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer: %w", key, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
}

// ArgBool returns args[key] as a bool, or def when the key is missing.
func ArgBool(args map[string]any, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%s must be a boolean, got %T", key, v)
	}
	return b, nil
}
