package jwt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Kind is the variant held by a Value.
type Kind int

// Value kinds.
const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

// Value is a claim value: a string, integer, boolean, list or nested map.
// Floats and null are accepted when decoding foreign tokens.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	bln  bool
	list []Value
	obj  *Claims
}

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, bln: b} }

// Null returns the null value.
func Null() Value { return Value{} }

// List returns a list value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Strings returns a list of string values.
func Strings(items []string) Value {
	out := make([]Value, len(items))
	for i, s := range items {
		out[i] = String(s)
	}
	return List(out...)
}

// Map returns a nested map value. A nil map encodes as {}.
func Map(c *Claims) Value {
	if c == nil {
		c = NewClaims()
	}
	return Value{kind: KindMap, obj: c}
}

// StringMap returns a nested map of strings, keys in the given order.
func StringMap(keys []string, values map[string]string) Value {
	c := NewClaims()
	for _, k := range keys {
		c.Set(k, String(values[k]))
	}
	return Map(c)
}

// Kind reports the variant.
func (v Value) Kind() Kind { return v.kind }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsInt returns the integer and whether v is an integer. Whole floats
// are accepted.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.num, true
	case KindFloat:
		if v.flt == float64(int64(v.flt)) {
			return int64(v.flt), true
		}
	}
	return 0, false
}

// AsBool returns the boolean and whether v is a boolean.
func (v Value) AsBool() (bool, bool) { return v.bln, v.kind == KindBool }

// AsList returns the items and whether v is a list.
func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsMap returns the nested claims and whether v is a map.
func (v Value) AsMap() (*Claims, bool) { return v.obj, v.kind == KindMap }

// Interface converts v to plain Go values (string, int64, float64, bool,
// []interface{}, map[string]interface{} or nil).
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.bln
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		return v.obj.Map()
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindString:
		return encodeString(buf, v.str)
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.num, 10))
	case KindFloat:
		b, err := json.Marshal(v.flt)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.bln))
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		return v.obj.encode(buf)
	default:
		return fmt.Errorf("unknown value kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	decoded, err := decodeValue(dec)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// Claims is an ordered map of claim names to values. Encoding follows
// insertion order and Set on an existing key keeps its position.
type Claims struct {
	keys   []string
	values map[string]Value
}

// NewClaims returns an empty claim set.
func NewClaims() *Claims {
	return &Claims{values: map[string]Value{}}
}

// Set stores v under key and returns c for chaining.
func (c *Claims) Set(key string, v Value) *Claims {
	if c.values == nil {
		c.values = map[string]Value{}
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
	return c
}

// Get returns the value under key.
func (c *Claims) Get(key string) (Value, bool) {
	if c == nil {
		return Value{}, false
	}
	v, ok := c.values[key]
	return v, ok
}

// Has reports whether key is present.
func (c *Claims) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// GetString returns the string under key, or "" if absent or not a string.
func (c *Claims) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := v.AsString()
	return s
}

// GetInt returns the integer under key.
func (c *Claims) GetInt(key string) (int64, bool) {
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	return v.AsInt()
}

// Delete removes key.
func (c *Claims) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the claim names in order.
func (c *Claims) Keys() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.keys...)
}

// Len returns the number of claims.
func (c *Claims) Len() int {
	if c == nil {
		return 0
	}
	return len(c.keys)
}

// Clone returns a shallow copy that can be extended independently.
func (c *Claims) Clone() *Claims {
	out := NewClaims()
	if c == nil {
		return out
	}
	for _, k := range c.keys {
		out.Set(k, c.values[k])
	}
	return out
}

// Merge copies every claim of other into c, overwriting on collision.
func (c *Claims) Merge(other *Claims) *Claims {
	if other == nil {
		return c
	}
	for _, k := range other.keys {
		c.Set(k, other.values[k])
	}
	return c
}

// Map converts the claims to a plain map.
func (c *Claims) Map() map[string]interface{} {
	out := make(map[string]interface{}, c.Len())
	if c == nil {
		return out
	}
	for _, k := range c.keys {
		out[k] = c.values[k].Interface()
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (c *Claims) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := c.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Claims) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	if c != nil {
		for i, k := range c.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := c.values[k].encode(buf); err != nil {
				return fmt.Errorf("claim %q: %w", k, err)
			}
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping document order.
func (c *Claims) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return err
	}
	obj, ok := v.AsMap()
	if !ok {
		return errors.New("claims must be a JSON object")
	}
	*c = *obj
	return nil
}

// encodeString writes s as a JSON string without HTML escaping.
func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		case '{':
			obj := NewClaims()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Map(obj), nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}
