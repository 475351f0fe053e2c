package value

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

type Kind uint32

const (
	KindNone Kind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindInstance
	KindList
	KindArray
)

var kindMapping = map[Kind]string{
	KindNone:     "None",
	KindInt:      "Int",
	KindFloat:    "Float",
	KindBool:     "Bool",
	KindString:   "String",
	KindInstance: "Instance",
	KindList:     "List",
	KindArray:    "Array",
}

func (k Kind) String() string {
	str, ok := kindMapping[k]
	if !ok {
		return fmt.Sprintf("Kind(%d)", uint32(k))
	}
	return str
}

// Value is a tagged runtime value. The zero Value is None. Lists and arrays share a representation;
// the kind only records which literal produced them.
//
// Copying a Value is shallow: copies share the elements of a list or array and the fields of an
// instance. Use Clone for an independent copy.
type Value struct {
	kind     Kind
	integer  int64
	float    float64
	boolean  bool
	str      string
	instance *Instance
	items    []Value
}

func None() Value                { return Value{} }
func Int(i int64) Value          { return Value{kind: KindInt, integer: i} }
func Float(f float64) Value      { return Value{kind: KindFloat, float: f} }
func Bool(b bool) Value          { return Value{kind: KindBool, boolean: b} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func List(items ...Value) Value  { return Value{kind: KindList, items: items} }
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// InstanceOf wraps a class instance. A nil instance produces None.
func InstanceOf(instance *Instance) Value {
	if instance == nil {
		return None()
	}
	return Value{kind: KindInstance, instance: instance}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNone() bool { return v.kind == KindNone }

func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.integer, true
}

// AsFloat returns the value as a float. Ints are promoted.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.float, true
	case KindInt:
		return float64(v.integer), true
	default:
		return 0, false
	}
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.boolean, true
}

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsList returns the elements of a list or an array. The returned slice is shared with the value.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList && v.kind != KindArray {
		return nil, false
	}
	return v.items, true
}

func (v Value) AsInstance() (*Instance, bool) {
	if v.kind != KindInstance {
		return nil, false
	}
	return v.instance, true
}

// Clone returns a deep copy of the value. Instances and list elements are copied recursively.
func (v Value) Clone() Value {
	switch v.kind {
	case KindInstance:
		v.instance = v.instance.Clone()
	case KindList, KindArray:
		if v.items != nil {
			items := make([]Value, len(v.items))
			for i, item := range v.items {
				items[i] = item.Clone()
			}
			v.items = items
		}
	}
	return v
}

// Equal compares two values structurally. Ints and floats never compare equal to one another, and
// a list never equals an array with the same elements.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNone:
		return true
	case KindInt:
		return v.integer == other.integer
	case KindFloat:
		return v.float == other.float
	case KindBool:
		return v.boolean == other.boolean
	case KindString:
		return v.str == other.str
	case KindInstance:
		return v.instance.Equal(other.instance)
	case KindList, KindArray:
		if len(v.items) != len(other.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(other.items[i]) {
				return false
			}
		}
		return true
	}

	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNone:
		return "None"
	case KindInt:
		return fmt.Sprintf("%d", v.integer)
	case KindFloat:
		return fmt.Sprintf("%g", v.float)
	case KindBool:
		return fmt.Sprintf("%t", v.boolean)
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindInstance:
		return fmt.Sprintf("<%s instance>", v.instance.ClassName)
	default:
		return fmt.Sprintf("%s%v", v.kind, v.items)
	}
}

// WriteJSON writes the value as json. None becomes null, an instance becomes an object holding its
// class name and fields, and lists and arrays both become json arrays.
func (v Value) WriteJSON(writer *jwriter.Writer) {
	switch v.kind {
	case KindInt:
		writer.Int(int(v.integer))
	case KindFloat:
		writer.Float64(v.float)
	case KindBool:
		writer.Bool(v.boolean)
	case KindString:
		writer.String(v.str)
	case KindInstance:
		obj := writer.Object()
		v.instance.writeFields(&obj)
		obj.End()
	case KindList, KindArray:
		arr := writer.Array()
		for _, item := range v.items {
			item.writeElement(&arr)
		}
		arr.End()
	default:
		writer.Null()
	}
}

func (v Value) writeElement(arr *jwriter.ArrayState) {
	switch v.kind {
	case KindInt:
		arr.Int(int(v.integer))
	case KindFloat:
		arr.Float64(v.float)
	case KindBool:
		arr.Bool(v.boolean)
	case KindString:
		arr.String(v.str)
	case KindInstance:
		obj := arr.Object()
		v.instance.writeFields(&obj)
		obj.End()
	case KindList, KindArray:
		nested := arr.Array()
		for _, item := range v.items {
			item.writeElement(&nested)
		}
		nested.End()
	default:
		arr.Null()
	}
}
