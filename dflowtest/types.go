// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dflowtest provides an in-memory dflow.Graph builder and a
// handful of canned node and value types, for use by package eval's
// end-to-end tests. Grounded on the shape of
// _examples/grailbio-reflow/test/flow's constructors and
// test/testutil's fakes, adapted from "build a *flow.Flow by hand" to
// "build a dflow.Graph by hand".
package dflowtest

import (
	"strconv"

	"github.com/nodedag/dflow/values"
)

// intType is the canned values.Type for plain ints: convertible to
// itself and to StringType, never a field type.
type intType struct{}

// IntType is the canned int value type used by test graphs.
var IntType values.Type = intType{}

func (intType) Name() string                  { return "int" }
func (intType) Default() values.T              { return 0 }
func (intType) Copy(v values.T) values.T       { return v }
func (intType) Destruct(values.T)              {}
func (intType) Equal(a, b values.T) bool       { return a.(int) == b.(int) }
func (intType) IsFieldType() bool              { return false }
func (intType) BaseType() values.Type          { return nil }

func (intType) ConvertibleTo(target values.Type) bool {
	switch target.Name() {
	case "int", "string":
		return true
	default:
		return false
	}
}

func (intType) Convert(v values.T, target values.Type) (values.T, bool) {
	switch target.Name() {
	case "int":
		return v, true
	case "string":
		return strconv.Itoa(v.(int)), true
	default:
		return nil, false
	}
}

// FieldType implements values.FieldTypeProvider: a multi-function
// output declared as IntType is wrapped as IntFieldType once lifting
// (spec.md §4.10) is triggered.
func (intType) FieldType() values.Type { return IntFieldType }

// intFieldType is the canned values.Type for a lazy columnar carrier of
// ints, used to exercise the field-lifting branch of a multi-function
// node (spec.md §4.10) without a real columnar engine.
type intFieldType struct{}

// IntFieldType is the canned field-carrier type paired with IntType.
var IntFieldType values.Type = intFieldType{}

func (intFieldType) Name() string            { return "int-field" }
func (intFieldType) Default() values.T        { return IntField{} }
func (intFieldType) Copy(v values.T) values.T { return v }
func (intFieldType) Destruct(values.T)        {}
func (intFieldType) Equal(a, b values.T) bool {
	af, bf := a.(IntField), b.(IntField)
	if len(af.Data) != len(bf.Data) {
		return false
	}
	for i := range af.Data {
		if af.Data[i] != bf.Data[i] {
			return false
		}
	}
	return true
}
func (intFieldType) IsFieldType() bool     { return true }
func (intFieldType) BaseType() values.Type { return IntType }

func (intFieldType) ConvertibleTo(target values.Type) bool {
	return target.Name() == "int-field"
}

func (intFieldType) Convert(v values.T, target values.Type) (values.T, bool) {
	if target.Name() == "int-field" {
		return v, true
	}
	return nil, false
}

// IntField is a lazy columnar carrier of ints: a fixed, already-known
// slice standing in for a real deferred computation, sufficient to
// exercise the field-lifting dispatch in eval/multifn.go (values.AsField,
// MultiFunction.Lift) without a real columnar engine.
type IntField struct {
	Data []int
}

func (IntField) IsField() bool         { return true }
func (IntField) BaseType() values.Type { return IntType }

// stringType is the canned values.Type for plain strings: convertible
// to itself and, when parseable, to IntType.
type stringType struct{}

// StringType is the canned string value type used by test graphs.
var StringType values.Type = stringType{}

func (stringType) Name() string            { return "string" }
func (stringType) Default() values.T        { return "" }
func (stringType) Copy(v values.T) values.T { return v }
func (stringType) Destruct(values.T)        {}
func (stringType) Equal(a, b values.T) bool { return a.(string) == b.(string) }
func (stringType) IsFieldType() bool        { return false }
func (stringType) BaseType() values.Type    { return nil }

func (stringType) ConvertibleTo(target values.Type) bool {
	switch target.Name() {
	case "int", "string":
		return true
	default:
		return false
	}
}

func (stringType) Convert(v values.T, target values.Type) (values.T, bool) {
	switch target.Name() {
	case "string":
		return v, true
	case "int":
		n, err := strconv.Atoi(v.(string))
		if err != nil {
			return nil, false
		}
		return n, true
	default:
		return nil, false
	}
}

// incompatibleType is convertible to nothing, including itself by
// name-only coincidence; used to exercise the type-mismatch-and-
// recover path of spec.md §4.12/§7 (values.Convert's fallback to
// target.Default()).
type incompatibleType struct{ name string }

// NewIncompatibleType returns a values.Type that never converts to
// anything, named name for diagnostics.
func NewIncompatibleType(name string) values.Type { return incompatibleType{name: name} }

func (t incompatibleType) Name() string                         { return t.name }
func (incompatibleType) Default() values.T                      { return struct{}{} }
func (incompatibleType) Copy(v values.T) values.T                { return v }
func (incompatibleType) Destruct(values.T)                      {}
func (incompatibleType) Equal(a, b values.T) bool                { return a == b }
func (incompatibleType) IsFieldType() bool                       { return false }
func (incompatibleType) BaseType() values.Type                   { return nil }
func (incompatibleType) ConvertibleTo(values.Type) bool          { return false }
func (incompatibleType) Convert(values.T, values.Type) (values.T, bool) { return nil, false }
