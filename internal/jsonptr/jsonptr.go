// Package jsonptr implements the small subset of the original JSON path
// mini-language that processors actually use to pull values out of a job's
// arg1/arg2 JSON payloads and out of structured log records: ".key" for
// object descent and "[index]" for array indexing, chained arbitrarily
// (".sched_time", ".rstr_to_job_id", "[0][4]").
//
// The "#"/"$" positional placeholders spec.md mentions belong to the
// original's printf-style SQL/log-record builders, not to stored JSON
// values; there is nothing in this implementation that substitutes
// arguments into a JSON string before parsing it, so they have no
// equivalent here.
package jsonptr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// token is one descent step: either a map key or an array index.
type token struct {
	key   string
	index int
	isKey bool
}

// parsePath tokenizes a path like ".foo[2].bar" or "[0][4]".
func parsePath(path string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(path) {
		switch path[i] {
		case '.':
			j := i + 1
			for j < len(path) && path[j] != '.' && path[j] != '[' {
				j++
			}
			if j == i+1 {
				return nil, fmt.Errorf("jsonptr: empty key at offset %d in %q", i, path)
			}
			toks = append(toks, token{key: path[i+1 : j], isKey: true})
			i = j
		case '[':
			j := strings.IndexByte(path[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("jsonptr: unterminated '[' in %q", path)
			}
			idxStr := path[i+1 : i+j]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("jsonptr: bad array index %q in %q: %w", idxStr, path, err)
			}
			toks = append(toks, token{index: idx})
			i += j + 1
		default:
			return nil, fmt.Errorf("jsonptr: unexpected character %q at offset %d in %q", path[i], i, path)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("jsonptr: empty path")
	}
	return toks, nil
}

// Get parses raw as JSON and walks path, returning the raw decoded value
// (string, float64, bool, nil, []interface{}, or map[string]interface{}).
func Get(raw []byte, path string) (interface{}, error) {
	toks, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("jsonptr: invalid json: %w", err)
	}
	for _, t := range toks {
		if t.isKey {
			m, ok := v.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("jsonptr: %q: not an object", t.key)
			}
			next, ok := m[t.key]
			if !ok {
				return nil, fmt.Errorf("jsonptr: key %q not found", t.key)
			}
			v = next
		} else {
			a, ok := v.([]interface{})
			if !ok {
				return nil, fmt.Errorf("jsonptr: [%d]: not an array", t.index)
			}
			if t.index < 0 || t.index >= len(a) {
				return nil, fmt.Errorf("jsonptr: index %d out of range (len %d)", t.index, len(a))
			}
			v = a[t.index]
		}
	}
	return v, nil
}

// GetString is Get followed by a string type assertion.
func GetString(raw []byte, path string) (string, error) {
	v, err := Get(raw, path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("jsonptr: value at %q is not a string", path)
	}
	return s, nil
}

// GetFloat is Get followed by a float64 type assertion — JSON numbers
// always decode to float64 via encoding/json's default unmarshaling.
func GetFloat(raw []byte, path string) (float64, error) {
	v, err := Get(raw, path)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("jsonptr: value at %q is not a number", path)
	}
	return f, nil
}

// GetInt is GetFloat truncated to int.
func GetInt(raw []byte, path string) (int, error) {
	f, err := GetFloat(raw, path)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
