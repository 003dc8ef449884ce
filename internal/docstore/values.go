package docstore

import (
	"encoding/json"
	"math"
	"time"
)

// Float reads a numeric field. ok is false when the field is missing or not a number.
func (d Data) Float(key string) (float64, bool) {
	return toFloat(d[key])
}

// Int64 reads a numeric field that must hold an integral value.
func (d Data) Int64(key string) (int64, bool) {
	f, ok := d.Float(key)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// Int reads an integral field, defaulting to 0.
func (d Data) Int(key string) int {
	n, _ := d.Int64(key)
	return int(n)
}

// String reads a string field, defaulting to "".
func (d Data) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Bool reads a boolean field, defaulting to false.
func (d Data) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// Time reads a timestamp field written as time.Time or RFC 3339 text.
func (d Data) Time(key string) time.Time {
	switch v := d[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}

// Strings reads a list of strings.
func (d Data) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := item.(string)
			out = append(out, s)
		}
		return out
	}
	return nil
}

// Ints reads a list of integral numbers.
func (d Data) Ints(key string) []int {
	switch v := d[key].(type) {
	case []int:
		return append([]int(nil), v...)
	case []int64:
		out := make([]int, len(v))
		for i, n := range v {
			out[i] = int(n)
		}
		return out
	case []any:
		out := make([]int, 0, len(v))
		for _, item := range v {
			f, _ := toFloat(item)
			out = append(out, int(f))
		}
		return out
	}
	return nil
}

// Map reads a nested map field.
func (d Data) Map(key string) Data {
	switch v := d[key].(type) {
	case map[string]any:
		return Data(v)
	case Data:
		return v
	}
	return nil
}

// Clone copies the top level of d.
func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Equal compares field values the way Query filters do: numbers by value.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	return false
}

// Apply resolves transforms in patch against current and returns the merged document.
// When replace is true the current fields are dropped first, as with Set.
func Apply(current, patch Data, replace bool, now time.Time) Data {
	out := Data{}
	if !replace {
		for k, v := range current {
			out[k] = v
		}
	}
	for k, v := range patch {
		switch t := v.(type) {
		case Increment:
			base := 0.0
			if !replace {
				base, _ = toFloat(current[k])
			}
			out[k] = base + t.By
		case ServerTime:
			out[k] = now
		default:
			out[k] = v
		}
	}
	return out
}

// Matches reports whether data satisfies every filter.
func Matches(data Data, filters []Filter) bool {
	for _, f := range filters {
		if !Equal(data[f.Field], f.Value) {
			return false
		}
	}
	return true
}
