package report

import (
	"strconv"
	"time"
)

// Kind identifies the scalar type held by a Value.
type Kind int

// Value kinds.
const (
	KindAbsent Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindTime
)

// Value is a single report cell. The zero Value is absent and renders blank.
type Value struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

// Absent returns the explicit "field not present" value.
func Absent() Value {
	return Value{}
}

// String wraps a string.
func String(s string) Value {
	return Value{kind: KindString, s: s}
}

// Int wraps an integer.
func Int(n int64) Value {
	return Value{kind: KindInt, i: n}
}

// Float wraps a float.
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// Bool wraps a bool.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Time wraps a timestamp after stripping its zone, see NaiveTime.
func Time(t time.Time) Value {
	return Value{kind: KindTime, t: NaiveTime(t)}
}

// StringPtr maps nil to Absent.
func StringPtr(s *string) Value {
	if s == nil {
		return Absent()
	}
	return String(*s)
}

// Int32Ptr maps nil to Absent.
func Int32Ptr(n *int32) Value {
	if n == nil {
		return Absent()
	}
	return Int(int64(*n))
}

// Int64Ptr maps nil to Absent.
func Int64Ptr(n *int64) Value {
	if n == nil {
		return Absent()
	}
	return Int(*n)
}

// BoolPtr maps nil to Absent.
func BoolPtr(b *bool) Value {
	if b == nil {
		return Absent()
	}
	return Bool(*b)
}

// TimePtr maps nil to Absent.
func TimePtr(t *time.Time) Value {
	if t == nil {
		return Absent()
	}
	return Time(*t)
}

// Enum wraps an SDK string enum, treating the empty string as absent.
func Enum[T ~string](v T) Value {
	if v == "" {
		return Absent()
	}
	return String(string(v))
}

// Kind returns the value kind.
func (v Value) Kind() Kind {
	return v.kind
}

// IsAbsent reports whether the value is the absent marker.
func (v Value) IsAbsent() bool {
	return v.kind == KindAbsent
}

// Interface returns the underlying Go value, nil when absent.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindBool:
		return v.b
	case KindTime:
		return v.t
	default:
		return nil
	}
}

// String renders the value as text. Absent renders as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindTime:
		return v.t.Format(time.DateTime)
	default:
		return ""
	}
}

// NaiveTime drops the zone of t while keeping its wall clock fields.
// The result carries the UTC location so it has no offset.
func NaiveTime(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
