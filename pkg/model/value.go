// ABOUTME: Typed variable values carried by statements
// ABOUTME: Value is a closed sum type over entity, text, boolean and integer

package model

import (
	"fmt"
	"strconv"
)

// DataType is the declared type of a statement variable
type DataType int

const (
	ShortText DataType = iota
	LongText
	Boolean
	Integer
)

func (d DataType) String() string {
	switch d {
	case ShortText:
		return "short text"
	case LongText:
		return "long text"
	case Boolean:
		return "boolean"
	case Integer:
		return "integer"
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// ParseDataType accepts the names returned by String
func ParseDataType(s string) (DataType, error) {
	switch s {
	case "short text":
		return ShortText, nil
	case "long text":
		return LongText, nil
	case "boolean":
		return Boolean, nil
	case "integer":
		return Integer, nil
	}
	return 0, fmt.Errorf("%w: unknown data type %q", ErrValidation, s)
}

// Value is one of EntityRef, Text, Boolean or Integer.
// The unexported marker keeps the set closed to this package.
type Value interface {
	dataType() DataType
}

// EntityRef holds a short-text value resolved against the entity taxonomy
type EntityRef struct {
	Entity Entity
}

// Text holds a long-text value
type Text string

// BoolValue holds a boolean value
type BoolValue bool

// IntValue holds an integer value
type IntValue int

func (EntityRef) dataType() DataType { return ShortText }
func (Text) dataType() DataType      { return LongText }
func (BoolValue) dataType() DataType { return Boolean }
func (IntValue) dataType() DataType  { return Integer }

// TypeOf returns the data type a value carries
func TypeOf(v Value) DataType {
	return v.dataType()
}

// FormatValue renders a value the way filters and exports see it:
// the entity's value for short text, decimal for integers and booleans.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case EntityRef:
		return x.Entity.Value
	case Text:
		return string(x)
	case BoolValue:
		if x {
			return "1"
		}
		return "0"
	case IntValue:
		return strconv.Itoa(int(x))
	case nil:
		return ""
	}
	panic(fmt.Sprintf("model: unhandled value type %T", v))
}

// EqualValues compares two values; entity refs compare by id and value
func EqualValues(a, b Value) bool {
	switch x := a.(type) {
	case EntityRef:
		y, ok := b.(EntityRef)
		return ok && x.Entity.ID == y.Entity.ID && x.Entity.Value == y.Entity.Value
	case Text, BoolValue, IntValue:
		return a == b
	case nil:
		return b == nil
	}
	panic(fmt.Sprintf("model: unhandled value type %T", a))
}

// Zero returns the empty value for a data type
func Zero(d DataType) Value {
	switch d {
	case ShortText:
		return EntityRef{Entity: Entity{ID: UnsavedID}}
	case LongText:
		return Text("")
	case Boolean:
		return BoolValue(false)
	case Integer:
		return IntValue(0)
	}
	panic(fmt.Sprintf("model: unhandled data type %d", int(d)))
}

// Variable is one typed slot of a statement
type Variable struct {
	VariableID int
	Key        string
	DataType   DataType
	Value      Value
}

// Validate checks that the value's runtime type matches DataType
func (v Variable) Validate() error {
	if v.Value == nil {
		return fmt.Errorf("%w: variable %q has no value", ErrValidation, v.Key)
	}
	if got := TypeOf(v.Value); got != v.DataType {
		return fmt.Errorf("%w: variable %q declared %s but holds %s", ErrValidation, v.Key, v.DataType, got)
	}
	return nil
}

// String renders the variable value
func (v Variable) String() string {
	return FormatValue(v.Value)
}
