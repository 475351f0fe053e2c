package value

// Object is a value owned by the runtime. The accessors forward to the wrapped value.
type Object struct {
	Value Value
}

func NewObject(v Value) *Object {
	return &Object{Value: v}
}

func (o *Object) Kind() Kind                    { return o.Value.Kind() }
func (o *Object) AsInt() (int64, bool)          { return o.Value.AsInt() }
func (o *Object) AsFloat() (float64, bool)      { return o.Value.AsFloat() }
func (o *Object) AsBool() (bool, bool)          { return o.Value.AsBool() }
func (o *Object) AsString() (string, bool)      { return o.Value.AsString() }
func (o *Object) AsList() ([]Value, bool)       { return o.Value.AsList() }
func (o *Object) AsInstance() (*Instance, bool) { return o.Value.AsInstance() }
