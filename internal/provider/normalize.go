package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Providers disagree on numeric typing: counters arrive as numbers,
// numeric strings, or garbage. The contract is that malformed or missing
// numerics normalize to 0 (counters) or nil (duration/timestamps), never
// to an error.

func coerceInt64(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return i
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

func coerceFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil
		}
		return &f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func coerceTimePtr(v any) *time.Time {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			utc := parsed.UTC()
			return &utc
		}
		// Some providers send Unix seconds as a string.
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
			parsed := time.Unix(secs, 0).UTC()
			return &parsed
		}
		return nil
	case float64:
		if t <= 0 {
			return nil
		}
		parsed := time.Unix(int64(t), 0).UTC()
		return &parsed
	case json.Number:
		secs, err := t.Int64()
		if err != nil || secs <= 0 {
			return nil
		}
		parsed := time.Unix(secs, 0).UTC()
		return &parsed
	default:
		return nil
	}
}

func coerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
