package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// The gateway reads config.json or config.yaml. YAML input is rewritten to
// JSON before decoding so one strict decoder (DisallowUnknownFields) guards
// both formats: a typoed key fails the load either way.
func toStrictJSON(path string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	out, err := json.Marshal(stringifyKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("convert yaml config: %w", err)
	}
	return out, nil
}

// stringifyKeys rewrites YAML's map[any]any nodes with string keys so the
// document survives json.Marshal.
func stringifyKeys(node any) any {
	switch n := node.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, v := range n {
			out[fmt.Sprint(k)] = stringifyKeys(v)
		}
		return out
	case map[string]any:
		for k, v := range n {
			n[k] = stringifyKeys(v)
		}
		return n
	case []any:
		for i, v := range n {
			n[i] = stringifyKeys(v)
		}
		return n
	}
	return node
}

// ParseDurationField parses a duration-valued field (relay.timeout,
// storage.busy_timeout), naming field in any error. Unset is zero, not an
// error; negative values are rejected.
func ParseDurationField(field, value string) (time.Duration, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: bad duration %q: %w", field, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration %q must not be negative", field, value)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is unset, for fields
// where the gateway carries its own default (the relay client's 15s timeout).
func ParseDurationOrDefault(field, value string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, value)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}
