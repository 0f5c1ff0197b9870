package template

import (
	"fmt"
	"strconv"
)

// Value is one entry of a VariableBag: either a Scalar rendered by string
// coercion, or an Items sequence consumed exclusively by {{#each}} blocks.
// The two forms are deliberately distinct types so the renderer can tell
// "iterate me" from "stringify me" without reflection on arbitrary values.
type Value interface {
	templateValue()
}

// Scalar wraps a single value. Nil renders as the empty string; everything
// else uses its natural string form.
type Scalar struct {
	V any
}

func (Scalar) templateValue() {}

// Item is one record inside an Items sequence, a flat mapping from field
// name to scalar value.
type Item map[string]any

// Items is an ordered sequence of records iterated by {{#each}} blocks.
type Items []Item

func (Items) templateValue() {}

// VariableBag is the data supplied at render time to fill placeholders.
// Variable names are matched case-sensitively and must consist of word
// characters to be recognized by the template grammar.
type VariableBag map[string]Value

// String wraps a string as a Scalar value.
func String(s string) Value { return Scalar{V: s} }

// Int wraps an integer as a Scalar value.
func Int(n int) Value { return Scalar{V: n} }

// Float wraps a float as a Scalar value.
func Float(f float64) Value { return Scalar{V: f} }

// Bool wraps a boolean as a Scalar value.
func Bool(b bool) Value { return Scalar{V: b} }

// Null returns a Scalar holding nil. It renders as "" and is falsy in
// conditionals.
func Null() Value { return Scalar{V: nil} }

// Seq builds an Items sequence from the given records.
func Seq(items ...Item) Value { return Items(items) }

// BagFromJSON converts a decoded JSON object into a VariableBag. Arrays of
// objects become Items sequences; every other value, including arrays of
// non-objects, becomes a Scalar. Used by the HTTP API and the queue worker,
// whose payloads arrive as map[string]any.
func BagFromJSON(raw map[string]any) VariableBag {
	if raw == nil {
		return VariableBag{}
	}
	bag := make(VariableBag, len(raw))
	for name, v := range raw {
		bag[name] = valueFromJSON(v)
	}
	return bag
}

func valueFromJSON(v any) Value {
	arr, ok := v.([]any)
	if !ok {
		return Scalar{V: v}
	}
	items := make(Items, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			return Scalar{V: v}
		}
		items = append(items, Item(obj))
	}
	return items
}

// coerce converts a scalar value to its rendered string form. Nil becomes
// the empty string. Floats drop the trailing ".0" that fmt would keep, so
// JSON-decoded integers render as integers.
func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

// truthy reports whether a conditional block guarded by this value should be
// kept. Only a missing variable, nil, the empty string, and the literal
// strings "false" and "0" are falsy; numeric zero and boolean false are NOT
// (the check compares against string forms supplied by upstream producers,
// not parsed values). Sequences are always truthy.
func truthy(v Value, ok bool) bool {
	if !ok {
		return false
	}
	s, isScalar := v.(Scalar)
	if !isScalar {
		return true
	}
	switch t := s.V.(type) {
	case nil:
		return false
	case string:
		return t != "" && t != "false" && t != "0"
	default:
		return true
	}
}
