package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind — вид значения в payload.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindList
)

// String возвращает имя вида.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value — значение payload: строка, число, bool, вложенная map или список.
//
// Нулевое значение Value — null.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	m    Payload
	l    []Value
}

// Payload — payload сообщения.
type Payload map[string]Value

// Null возвращает null-значение.
func Null() Value { return Value{} }

// String создаёт строковое значение.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number создаёт числовое значение.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int создаёт числовое значение из целого.
func Int(n int64) Value { return Value{kind: KindNumber, n: float64(n)} }

// Bool создаёт логическое значение.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map создаёт вложенную map. nil превращается в пустую map.
func Map(p Payload) Value {
	if p == nil {
		p = Payload{}
	}
	return Value{kind: KindMap, m: p}
}

// List создаёт список значений.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

// Kind возвращает вид значения.
func (v Value) Kind() Kind { return v.kind }

// IsNull возвращает true для null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString возвращает строку, если значение строковое.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsNumber возвращает число, если значение числовое.
func (v Value) AsNumber() (float64, bool) { return v.n, v.kind == KindNumber }

// AsBool возвращает bool, если значение логическое.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsMap возвращает вложенную map.
func (v Value) AsMap() (Payload, bool) { return v.m, v.kind == KindMap }

// AsList возвращает список.
func (v Value) AsList() ([]Value, bool) { return v.l, v.kind == KindList }

// Interface возвращает значение в виде обычных Go-типов
// (string, float64, bool, map[string]any, []any, nil).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return v.n
	case KindBool:
		return v.b
	case KindMap:
		return v.m.Interface()
	case KindList:
		out := make([]any, len(v.l))
		for i, item := range v.l {
			out[i] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal сравнивает значения рекурсивно.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	case KindMap:
		return v.m.Equal(o.m)
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone возвращает глубокую копию значения.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		return Map(v.m.Clone())
	case KindList:
		items := make([]Value, len(v.l))
		for i, item := range v.l {
			items[i] = item.Clone()
		}
		return List(items...)
	default:
		return v
	}
}

// MarshalJSON реализует json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.s)
	case KindNumber:
		if math.IsNaN(v.n) || math.IsInf(v.n, 0) {
			return nil, fmt.Errorf("unsupported number value %v", v.n)
		}
		return json.Marshal(v.n)
	case KindBool:
		return json.Marshal(v.b)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(map[string]Value(v.m))
	case KindList:
		if v.l == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.l)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON реализует json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}

	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*v = Map(m)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
	}
	return nil
}

// FromAny конвертирует обычные Go-значения (результат json.Unmarshal в any,
// числа, строки, map[string]any, []any) в Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(int64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("convert number %q: %w", t, err)
		}
		return Number(n), nil
	case map[string]any:
		p, err := PayloadFromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Map(p), nil
	case Payload:
		return Map(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			val, err := FromAny(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = val
		}
		return List(items...), nil
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return List(items...), nil
	default:
		return Value{}, fmt.Errorf("unsupported payload value type %T", x)
	}
}

// PayloadFromMap конвертирует map[string]any в Payload.
func PayloadFromMap(m map[string]any) (Payload, error) {
	p := make(Payload, len(m))
	for k, x := range m {
		val, err := FromAny(x)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		p[k] = val
	}
	return p, nil
}

// Interface возвращает payload как map[string]any.
func (p Payload) Interface() map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v.Interface()
	}
	return out
}

// Clone возвращает глубокую копию payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}

// Equal сравнивает payload. nil и пустая map равны.
func (p Payload) Equal(o Payload) bool {
	if len(p) != len(o) {
		return false
	}
	for k, v := range p {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Keys возвращает отсортированные ключи.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetString возвращает строковое поле.
func (p Payload) GetString(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}

// GetNumber возвращает числовое поле.
func (p Payload) GetNumber(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// GetBool возвращает логическое поле.
func (p Payload) GetBool(key string) (bool, bool) {
	v, ok := p[key]
	if !ok {
		return false, false
	}
	return v.AsBool()
}

// GetMap возвращает вложенную map.
func (p Payload) GetMap(key string) (Payload, bool) {
	v, ok := p[key]
	if !ok {
		return nil, false
	}
	return v.AsMap()
}
