package ruleengine

import (
	"encoding/json"
	"strconv"
	"strings"
)

// EvaluationInput carries the two resolution roots for one snapshot.
// Features is the indicator/meta tree captured by the snapshotter; Payload is
// the free-form body of whatever triggered the evaluation (e.g. an alert).
// Path lookups try Features first, then Payload.
type EvaluationInput struct {
	Features map[string]any
	Payload  map[string]any
}

// ResolveScalar resolves a compiled value reference to a number.
// The second return value is false when the reference cannot be resolved:
// missing key, out-of-range index, or a non-numeric final value. Resolution
// failure is an expected outcome, never an error.
func (in EvaluationInput) ResolveScalar(ref ValueRef) (float64, bool) {
	if ref.Literal != nil {
		return *ref.Literal, true
	}
	if ref.Path == "" {
		return 0, false
	}
	if v, ok := in.resolveFeaturePath(ref.Path); ok {
		return v, true
	}
	return resolvePath(in.Payload, ref.Path)
}

// resolveFeaturePath resolves a dotted path against the features root only.
// Used for references the rule format pins to the features namespace
// (market timing meta, decay inputs).
func (in EvaluationInput) resolveFeaturePath(path string) (float64, bool) {
	return resolvePath(in.Features, path)
}

// ResolveSeries returns the ordered numeric series stored under
// features.series.<name>. Non-numeric entries are dropped, preserving the
// order of the remaining values. A missing series resolves to nil.
func (in EvaluationInput) ResolveSeries(name string) []float64 {
	seriesRoot, ok := childLookup(in.Features, "series")
	if !ok {
		return nil
	}
	raw, ok := childLookup(seriesRoot, name)
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	out := make([]float64, 0, len(items))
	for _, item := range items {
		if v, ok := coerceNumber(item); ok {
			out = append(out, v)
		}
	}
	return out
}

// HigherTimeframe returns the features subtree for the given higher
// timeframe key, or false when absent.
func (in EvaluationInput) HigherTimeframe(timeframe string) (map[string]any, bool) {
	root, ok := childLookup(in.Features, "higherTimeframes")
	if !ok {
		return nil, false
	}
	sub, ok := childLookup(root, timeframe)
	if !ok {
		return nil, false
	}
	tree, ok := sub.(map[string]any)
	if !ok {
		return nil, false
	}
	return tree, true
}

// resolvePath walks a dotted path from root and coerces the final value to a
// number. Each segment is matched exactly first, then case- and
// punctuation-insensitively against sibling keys; array segments index
// numerically.
func resolvePath(root map[string]any, path string) (float64, bool) {
	if root == nil || path == "" {
		return 0, false
	}

	var node any = root
	for _, segment := range strings.Split(path, ".") {
		next, ok := childLookup(node, segment)
		if !ok {
			return 0, false
		}
		node = next
	}

	return coerceNumber(node)
}

// childLookup descends one level from node using a single canonicalizing
// strategy: exact key match, then a normalized-key scan over siblings.
// Slices accept numeric index segments.
func childLookup(node any, segment string) (any, bool) {
	switch n := node.(type) {
	case map[string]any:
		if v, ok := n[segment]; ok {
			return v, true
		}
		want := canonicalKey(segment)
		if want == "" {
			return nil, false
		}
		for k, v := range n {
			if canonicalKey(k) == want {
				return v, true
			}
		}
		return nil, false
	case []any:
		idx, err := strconv.Atoi(segment)
		if err != nil || idx < 0 || idx >= len(n) {
			return nil, false
		}
		return n[idx], true
	default:
		return nil, false
	}
}

// canonicalKey strips every non-alphanumeric rune and lowercases the rest,
// so "EMA(9)", "ema_9" and "Ema 9" all collapse to "ema9".
func canonicalKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		}
	}
	return b.String()
}

// coerceNumber converts the JSON scalar shapes we accept into a float64.
// Booleans and nulls are not numbers; numeric strings are accepted because
// upstream alert payloads frequently quote their numbers.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
