package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Raw представляет запись бэкенда, декодированную из JSON.
type Raw = map[string]any

const notAvailable = "N/A"

// unwrap снимает обёртки {data: ...} и {id, attributes: {...}}.
func unwrap(v any) Raw {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if inner, ok := m["data"]; ok {
		if _, hasID := m["id"]; !hasID {
			return unwrap(inner)
		}
	}
	if attrs, ok := m["attributes"].(map[string]any); ok {
		out := make(Raw, len(attrs)+1)
		for k, v := range attrs {
			out[k] = v
		}
		if id, ok := m["id"]; ok {
			out["id"] = id
		}
		return out
	}
	return m
}

// field возвращает первое непустое значение по списку ключей; ключи идут в порядке предпочтения.
func field(raw Raw, keys ...string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func str(raw Raw, keys ...string) string {
	for _, k := range keys {
		if v, ok := field(raw, k); ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func amount(raw Raw, keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		if v, ok := field(raw, k); ok {
			if d, ok := toDecimal(v); ok {
				return d, true
			}
		}
	}
	return decimal.Zero, false
}

func optionalAmount(raw Raw, keys ...string) *decimal.Decimal {
	d, ok := amount(raw, keys...)
	if !ok {
		return nil
	}
	return &d
}

func float(raw Raw, keys ...string) float64 {
	d, ok := amount(raw, keys...)
	if !ok {
		return 0
	}
	f, _ := d.Float64()
	return f
}

func integer(raw Raw, keys ...string) int {
	d, ok := amount(raw, keys...)
	if !ok {
		return 0
	}
	return int(d.IntPart())
}

func boolean(raw Raw, keys ...string) (bool, bool) {
	v, ok := field(raw, keys...)
	if !ok {
		return false, false
	}
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	return false, false
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func timestamp(raw Raw, keys ...string) *time.Time {
	s := str(raw, keys...)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func object(raw Raw, keys ...string) Raw {
	v, ok := field(raw, keys...)
	if !ok {
		return nil
	}
	return unwrap(v)
}

func list(raw Raw, keys ...string) []Raw {
	v, ok := field(raw, keys...)
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		v = m["data"]
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Raw, 0, len(items))
	for _, it := range items {
		if m := unwrap(it); m != nil {
			out = append(out, m)
		}
	}
	return out
}
