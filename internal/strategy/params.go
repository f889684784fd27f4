package strategy

import (
	"fmt"
	"strconv"
	"strings"
)

// Params holds named strategy options. Values may be numbers, numeric
// strings or booleans depending on their source (YAML, JSON, CLI flags).
type Params map[string]any

// ParseParams builds Params from "key=value" pairs. Values are kept as
// strings and converted on lookup.
func ParseParams(pairs []string) (Params, error) {
	p := Params{}
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", kv)
		}
		p[k] = strings.TrimSpace(v)
	}
	return p, nil
}

// Float returns the value at key as a float64, or def if it is missing or
// not numeric.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// Int returns the value at key truncated to an int, or def if it is missing,
// not numeric, or not positive.
func (p Params) Int(key string, def int) int {
	f := p.Float(key, float64(def))
	if f <= 0 {
		return def
	}
	return int(f)
}

// Clone returns a shallow copy of p, never nil.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
