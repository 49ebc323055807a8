package amf

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Range of the AMF3 integer type.
const (
	MaxInt29 = 1<<28 - 1
	MinInt29 = -1 << 28
)

// From converts a Go value into a Value. Integers that do not fit in 29 bits become a
// Number. Maps become anonymous objects with their keys sorted.
func From(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return t, nil
	case Marshaler:
		return t.MarshalAMF()
	case bool:
		return Bool(t), nil
	case int:
		return fromInt(int64(t)), nil
	case int8:
		return Integer(t), nil
	case int16:
		return Integer(t), nil
	case int32:
		return fromInt(int64(t)), nil
	case int64:
		return fromInt(t), nil
	case uint:
		return fromUint(uint64(t)), nil
	case uint8:
		return Integer(t), nil
	case uint16:
		return Integer(t), nil
	case uint32:
		return fromUint(uint64(t)), nil
	case uint64:
		return fromUint(t), nil
	case float32:
		return Number(t), nil
	case float64:
		return Number(t), nil
	case string:
		return String(t), nil
	case time.Time:
		return NewDate(t), nil
	case []byte:
		return ByteArray(t), nil
	case []int32:
		return VectorInt{Items: t}, nil
	case []uint32:
		return VectorUint{Items: t}, nil
	case []float64:
		return VectorDouble{Items: t}, nil
	case []string:
		arr := &Array{Dense: make([]Value, len(t))}
		for i, s := range t {
			arr.Dense[i] = String(s)
		}
		return arr, nil
	case []interface{}:
		arr := &Array{Dense: make([]Value, len(t))}
		for i, e := range t {
			ev, err := From(e)
			if err != nil {
				return nil, errors.Wrapf(err, "index %d", i)
			}
			arr.Dense[i] = ev
		}
		return arr, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			ev, err := From(t[k])
			if err != nil {
				return nil, errors.Wrapf(err, "key %q", k)
			}
			obj.Set(k, ev)
		}
		return obj, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedValue, "%T", v)
	}
}

// MustFrom is From for values known to convert, such as literals in tests and examples.
func MustFrom(v interface{}) Value {
	val, err := From(v)
	if err != nil {
		panic(err)
	}
	return val
}

func fromInt(i int64) Value {
	if i >= MinInt29 && i <= MaxInt29 {
		return Integer(i)
	}
	return Number(i)
}

func fromUint(u uint64) Value {
	if u <= MaxInt29 {
		return Integer(u)
	}
	return Number(u)
}

// ToNative converts a Value back into plain Go values: maps, slices, strings, float64,
// int32, bool, time.Time and nil. Cycles are cut with nil.
func ToNative(v Value) interface{} {
	return toNative(v, make(map[interface{}]bool))
}

func toNative(v Value, seen map[interface{}]bool) interface{} {
	switch t := v.(type) {
	case nil, Null, Undefined:
		return nil
	case Bool:
		return bool(t)
	case Integer:
		return int32(t)
	case Number:
		return float64(t)
	case String:
		return string(t)
	case XMLDocument:
		return string(t)
	case XML:
		return string(t)
	case ByteArray:
		return []byte(t)
	case Date:
		return t.Time
	case VectorInt:
		return t.Items
	case VectorUint:
		return t.Items
	case VectorDouble:
		return t.Items
	case Externalizable:
		return t
	}

	if seen[v] {
		return nil
	}
	seen[v] = true
	defer delete(seen, v)

	switch t := v.(type) {
	case *Array:
		if len(t.Assoc) == 0 {
			out := make([]interface{}, len(t.Dense))
			for i, e := range t.Dense {
				out[i] = toNative(e, seen)
			}
			return out
		}
		out := make(map[string]interface{}, len(t.Assoc)+len(t.Dense))
		for i, e := range t.Dense {
			out[strconv.Itoa(i)] = toNative(e, seen)
		}
		for _, p := range t.Assoc {
			out[p.Name] = toNative(p.Value, seen)
		}
		return out
	case *ECMAArray:
		out := make(map[string]interface{}, len(t.Props))
		for _, p := range t.Props {
			out[p.Name] = toNative(p.Value, seen)
		}
		return out
	case *Object:
		out := make(map[string]interface{})
		for _, p := range t.Properties() {
			out[p.Name] = toNative(p.Value, seen)
		}
		if name := t.ClassName(); name != "" {
			out["__class"] = name
		}
		return out
	case *VectorObject:
		out := make([]interface{}, len(t.Items))
		for i, e := range t.Items {
			out[i] = toNative(e, seen)
		}
		return out
	case *Dictionary:
		out := make(map[interface{}]interface{}, len(t.Entries))
		for _, e := range t.Entries {
			k := toNative(e.Key, seen)
			switch k.(type) {
			case map[string]interface{}, []interface{}, []byte, []int32, []uint32, []float64, map[interface{}]interface{}:
				k = fmt.Sprint(k)
			}
			out[k] = toNative(e.Value, seen)
		}
		return out
	}
	return nil
}
