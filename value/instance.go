package value

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Instance is an instance of a user-defined class: a class name plus named fields
type Instance struct {
	ClassName string

	fields map[string]Value
}

func NewInstance(className string) *Instance {
	return &Instance{
		ClassName: className,
		fields:    make(map[string]Value),
	}
}

// Field returns the value of the named field, if it has been set
func (i *Instance) Field(name string) (Value, bool) {
	v, ok := i.fields[name]
	return v, ok
}

// SetField sets the named field, replacing any previous value
func (i *Instance) SetField(name string, v Value) {
	if i.fields == nil {
		i.fields = make(map[string]Value)
	}
	i.fields[name] = v
}

// FieldNames returns the names of every set field in sorted order
func (i *Instance) FieldNames() []string {
	names := maps.Keys(i.fields)
	slices.Sort(names)
	return names
}

func (i *Instance) FieldCount() int { return len(i.fields) }

// Clone returns a deep copy of the instance and every field value
func (i *Instance) Clone() *Instance {
	clone := &Instance{
		ClassName: i.ClassName,
		fields:    make(map[string]Value, len(i.fields)),
	}
	for name, v := range i.fields {
		clone.fields[name] = v.Clone()
	}
	return clone
}

func (i *Instance) Equal(other *Instance) bool {
	if i == other {
		return true
	}
	if i == nil || other == nil {
		return false
	}
	if i.ClassName != other.ClassName || len(i.fields) != len(other.fields) {
		return false
	}

	for name, v := range i.fields {
		otherValue, ok := other.fields[name]
		if !ok || !v.Equal(otherValue) {
			return false
		}
	}
	return true
}

func (i *Instance) writeFields(obj *jwriter.ObjectState) {
	obj.Name("Class").String(i.ClassName)

	fields := obj.Name("Fields").Object()
	defer fields.End()

	for _, name := range i.FieldNames() {
		v := i.fields[name]
		v.WriteJSON(fields.Name(name))
	}
}
