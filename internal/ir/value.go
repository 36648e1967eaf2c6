package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the value kinds allowed in transaction
// arguments, receipt results and event payloads.
// There is no float kind: numbers are int64 so that encodings stay
// byte-stable across replays.
type Value interface {
	irValue()
}

// String is a string value.
type String string

// Int is an integer value.
type Int int64

// Bool is a boolean value.
type Bool bool

// Array is an ordered list of values.
type Array []Value

// Object maps string keys to values. Iterate with SortedKeys.
type Object map[string]Value

func (String) irValue() {}
func (Int) irValue()    {}
func (Bool) irValue()   {}
func (Array) irValue()  {}
func (Object) irValue() {}

// SortedKeys returns the object keys in RFC 8785 order (UTF-16 code units).
// This differs from Go's byte-wise string ordering for characters outside
// the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// GetString returns the string stored at key.
func (o Object) GetString(key string) (string, error) {
	v, ok := o[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(String)
	if !ok {
		return "", fmt.Errorf("field %q: expected string, got %T", key, v)
	}
	return string(s), nil
}

// GetInt returns the integer stored at key.
func (o Object) GetInt(key string) (int64, error) {
	v, ok := o[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	n, ok := v.(Int)
	if !ok {
		return 0, fmt.Errorf("field %q: expected int, got %T", key, v)
	}
	return int64(n), nil
}

// GetBool returns the boolean stored at key.
func (o Object) GetBool(key string) (bool, error) {
	v, ok := o[key]
	if !ok {
		return false, fmt.Errorf("missing field %q", key)
	}
	b, ok := v.(Bool)
	if !ok {
		return false, fmt.Errorf("field %q: expected bool, got %T", key, v)
	}
	return bool(b), nil
}

// MarshalJSON writes the object with keys in canonical order.
// Strings are not NFC-normalized here; use MarshalCanonical for hashing.
func (o Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalValue(o[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON writes each element with marshalValue.
func (a Array) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		vb, err := marshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		return val.MarshalJSON()
	case Object:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalJSON decodes an object, rejecting floats and null.
func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("expected object, got %T", v)
	}
	*o = obj
	return nil
}

// UnmarshalJSON decodes an array, rejecting floats and null.
func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := ParseValue(data)
	if err != nil {
		return err
	}
	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("expected array, got %T", v)
	}
	*a = arr
	return nil
}

// ParseValue decodes JSON into a Value. Numbers must be integers that fit
// in int64; null is rejected.
func ParseValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}

// FromGo converts decoded JSON or YAML values into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not allowed")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number %s is not an int64", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Value into plain Go values (string, int64, bool,
// []any, map[string]any) for display and YAML comparison.
func ToGo(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToGo(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToGo(e)
		}
		return out
	}
	return nil
}
