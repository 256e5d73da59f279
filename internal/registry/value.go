// internal/registry/value.go
//
// Typed scalar values.
//
// Context
// -------
// A Value is one canonical scalar tagged with its Kind.  Derivation emits
// them, the university row reads and writes them by column, and change
// records compare them.  Values is a field-keyed set of them.
//
// Notes
// -----
//   - Float equality tolerates DECIMAL round trips through the driver.
//   - Values marshal as bare JSON numbers or strings.  The registry
//     restores the kind on decode.
package registry

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
)

// Kind is the storage type of a scalar field.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return "float"
	}
}

// floatTolerance absorbs DECIMAL round trips through the driver.
const floatTolerance = 1e-9

// Value is one typed scalar.  Ints are held in Num.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Values maps field → proposed value for one derivation.
type Values map[Field]Value

func Float(f float64) Value { return Value{Kind: KindFloat, Num: f} }
func Int(i int64) Value     { return Value{Kind: KindInt, Num: float64(i)} }
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Equal compares two values of any kind.  Numbers compare within
// floatTolerance regardless of int/float kind.
func (v Value) Equal(o Value) bool {
	if (v.Kind == KindString) != (o.Kind == KindString) {
		return false
	}
	if v.Kind == KindString {
		return v.Str == o.Str
	}
	return math.Abs(v.Num-o.Num) <= floatTolerance
}

// Any returns the driver/JSON representation: float64, int64, or string.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return int64(math.Round(v.Num))
	case KindString:
		return v.Str
	default:
		return v.Num
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(int64(math.Round(v.Num)), 10)
	case KindString:
		return v.Str
	default:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
}

func (v Value) MarshalJSON() ([]byte, error) { return json.Marshal(v.Any()) }

// Fields returns the keys of vs in sorted order.
func (vs Values) Fields() []Field {
	out := make([]Field, 0, len(vs))
	for f := range vs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
