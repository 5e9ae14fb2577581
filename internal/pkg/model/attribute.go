package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind discriminates the scalar types an attribute value can hold.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindBool
	KindString
)

// AttributeValue is a typed scalar attribute value. The vendor API exposes
// attributes as untyped JSON; this keeps the type information so per-product
// command builders can validate at the boundary.
type AttributeValue struct {
	kind Kind
	i    int64
	f    float64
	b    bool
	s    string
}

func IntValue(v int64) AttributeValue     { return AttributeValue{kind: KindInt, i: v} }
func FloatValue(v float64) AttributeValue { return AttributeValue{kind: KindFloat, f: v} }
func BoolValue(v bool) AttributeValue     { return AttributeValue{kind: KindBool, b: v} }
func StringValue(v string) AttributeValue { return AttributeValue{kind: KindString, s: v} }

func (v AttributeValue) Kind() Kind       { return v.kind }
func (v AttributeValue) Int() int64       { return v.i }
func (v AttributeValue) Float() float64   { return v.f }
func (v AttributeValue) Bool() bool       { return v.b }
func (v AttributeValue) AsString() string { return v.s }

func (v AttributeValue) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.s
	}
}

func (v AttributeValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.s)
	}
}

func (v *AttributeValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case json.Number:
		if i, err := strconv.ParseInt(t.String(), 10, 64); err == nil {
			*v = IntValue(i)
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return err
		}
		*v = FloatValue(f)
	case bool:
		*v = BoolValue(t)
	case string:
		*v = StringValue(t)
	default:
		return fmt.Errorf("unsupported attribute value: %s", string(data))
	}
	return nil
}

// Attributes maps attribute name to its current value.
type Attributes map[string]AttributeValue

func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge upserts the entries of other into a.
func (a Attributes) Merge(other Attributes) {
	for k, v := range other {
		a[k] = v
	}
}
