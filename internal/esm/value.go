// Package esm holds the literal values a content document exports and the
// helpers that read and write them as module source.
package esm

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"gopkg.in/yaml.v2"
)

// Value is a literal that can appear on the right-hand side of an exported binding.
// It is one of String, Number, Bool, Null, Array or *Object.
type Value interface {
	isValue()
}

type (
	// String is a string literal.
	String string
	// Number is a numeric literal.
	Number float64
	// Bool is a boolean literal.
	Bool bool
	// Null is the null literal.
	Null struct{}
	// Array is an ordered list of values.
	Array []Value
)

func (String) isValue()  {}
func (Number) isValue()  {}
func (Bool) isValue()    {}
func (Null) isValue()    {}
func (Array) isValue()   {}
func (*Object) isValue() {}

// MarshalJSON implements json.Marshaler.
func (Null) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// MarshalJSON implements json.Marshaler.
func (a Array) MarshalJSON() ([]byte, error) { return []byte(JSON(a)), nil }

// Object is an insertion-ordered string-keyed bag of values.
type Object struct {
	values map[string]Value
	keys   []string
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set stores v under key. Re-setting a key keeps its original position.
func (o *Object) Set(key string, v Value) *Object {
	if o.values == nil {
		o.values = make(map[string]Value)
	}
	if v == nil {
		v = Null{}
	}
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.values[key]
	return v, ok
}

// String returns the value under key when it is a String.
func (o *Object) String(key string) string {
	v, _ := o.Get(key)
	s, _ := v.(String)
	return string(s)
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Each calls fn for every entry in order.
func (o *Object) Each(fn func(key string, v Value)) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		fn(k, o.values[k])
	}
}

// Merge copies every entry of other into o, in other's order.
func (o *Object) Merge(other *Object) *Object {
	other.Each(func(k string, v Value) { o.Set(k, v) })
	return o
}

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	return []byte(JSON(o)), nil
}

// FromGo converts a decoded YAML or JSON value into a Value.
// yaml.MapSlice keeps its order; plain maps are sorted by key.
func FromGo(in any) (Value, error) {
	switch v := in.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case uint64:
		return Number(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Null{}, nil
		}
		return Number(v), nil
	case time.Time:
		return String(v.Format(time.RFC3339)), nil
	case []string:
		arr := make(Array, 0, len(v))
		for _, s := range v {
			arr = append(arr, String(s))
		}
		return arr, nil
	case []any:
		arr := make(Array, 0, len(v))
		for i, item := range v {
			converted, err := FromGo(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			arr = append(arr, converted)
		}
		return arr, nil
	case yaml.MapSlice:
		obj := NewObject()
		for _, item := range v {
			converted, err := FromGo(item.Value)
			if err != nil {
				return nil, fmt.Errorf("key %v: %w", item.Key, err)
			}
			obj.Set(fmt.Sprint(item.Key), converted)
		}
		return obj, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			converted, err := FromGo(v[k])
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", k, err)
			}
			obj.Set(k, converted)
		}
		return obj, nil
	case map[any]any:
		flat := make(map[string]any, len(v))
		for k, item := range v {
			flat[fmt.Sprint(k)] = item
		}
		return FromGo(flat)
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Number(rv.Uint()), nil
	case reflect.Float32:
		return Number(rv.Float()), nil
	}
	return nil, fmt.Errorf("unsupported value of type %T", in)
}

// ToGo converts v into plain Go values (string, float64, bool, nil, []any,
// map[string]any) for use in templates.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = ToGo(item)
		}
		return out
	case *Object:
		out := make(map[string]any, val.Len())
		val.Each(func(k string, item Value) { out[k] = ToGo(item) })
		return out
	default:
		return nil
	}
}
