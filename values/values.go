// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package values defines the capability interfaces that the evaluator
// consumes for socket values: a value's type (size, alignment,
// construction, conversion) and, for nodes that provide a pure multi-
// function, the field-lifting machinery used to defer columnar
// computation (see package eval's multifn.go).
//
// Values are represented by values.T, defined as
//
//	type T = interface{}
//
// which is done to clarify code that uses socket values, in the same
// spirit as the teacher's values package.
package values

import "context"

// T is the type of a socket value. It is just an alias to interface{},
// but is used throughout code for clarity.
type T = interface{}

// Value is a single owned socket value together with its type. The
// evaluator never reads or writes the payload directly; all lifecycle
// operations are delegated to the value's Type.
type Value struct {
	Type Type
	Data T
}

// IsZero reports whether v holds no value.
func (v Value) IsZero() bool { return v.Type == nil }

// Clone returns a copy-constructed duplicate of v. It is used whenever a
// value must be fanned out to more than one consumer (spec §4.7 step 4):
// the original is moved to one consumer and clones are made for the
// rest, before any consumer can begin mutating it.
func (v Value) Clone() Value {
	if v.IsZero() {
		return v
	}
	return Value{Type: v.Type, Data: v.Type.Copy(v.Data)}
}

// Release destructs v's payload. Safe to call on a zero Value.
func (v Value) Release() {
	if v.IsZero() {
		return
	}
	v.Type.Destruct(v.Data)
}

// Type is the capability interface consumed from the type system (§6 of
// the specification): construction, copy, destruction, equality, and
// convertibility between socket value types. Implementations are
// supplied by the caller; the evaluator never constructs a Type itself
// except via Default.
type Type interface {
	// Name identifies the type for diagnostics.
	Name() string

	// Default returns a freshly default-constructed value of this type.
	Default() T

	// Copy returns a copy-constructed duplicate of v. v must have been
	// produced by this Type.
	Copy(v T) T

	// Destruct releases any resources held by v. After Destruct, v must
	// not be read or written again.
	Destruct(v T)

	// Equal reports whether a and b (both produced by this Type) are
	// indistinguishable under this type's equality. Used by P4/P7 and by
	// duplicate-origin multi-input cells (spec §4.4).
	Equal(a, b T) bool

	// ConvertibleTo reports whether values of this type can be converted
	// to target, possibly lossily.
	ConvertibleTo(target Type) bool

	// Convert converts v (produced by this Type) to target. ok is false
	// if the conversion failed; per spec §4.12/§7, the caller falls back
	// to target.Default() on failure rather than propagating an error.
	Convert(v T, target Type) (out T, ok bool)

	// IsFieldType reports whether this type represents a lazy field
	// carrier (spec §4.10) rather than a plain scalar value.
	IsFieldType() bool

	// BaseType returns the scalar type this field type lazily produces.
	// Only meaningful when IsFieldType reports true.
	BaseType() Type
}

// Field is implemented by values that are lazy, columnar computations
// rather than materialized scalars (spec §4.10, "Field" in the
// glossary). A multi-function node is lifted into field operations when
// any of its inputs is itself a Field.
type Field interface {
	// IsField always reports true; it lets callers type-switch on the
	// Field interface without a separate marker method colliding with
	// unrelated types.
	IsField() bool
	// BaseType is the scalar type this field evaluates to when read.
	BaseType() Type
}

// FieldTypeProvider is implemented by a scalar Type that also knows the
// field-carrier Type lazily producing it (spec §4.10: a multi-function
// node is lifted into field operations when any of its inputs is a
// Field). A multi-function's output socket is declared with the plain
// scalar Type; when lifting is triggered, eval/multifn.go asks the
// scalar Type for its field counterpart to wrap the resulting Field
// values before forwarding them.
type FieldTypeProvider interface {
	FieldType() Type
}

// AsField returns v's payload as a Field and true if v's type is a field
// type and the payload implements Field.
func AsField(v Value) (Field, bool) {
	if v.IsZero() || !v.Type.IsFieldType() {
		return nil, false
	}
	f, ok := v.Data.(Field)
	return f, ok
}

// MultiFunction is the capability interface for a node's pure, columnar
// computation (spec §4.10). It is invoked directly on scalar inputs of
// length one when none of them is a Field, or lifted into a new Field
// operation when at least one input is a Field.
type MultiFunction interface {
	// NumOutputs returns the number of output values this function
	// produces.
	NumOutputs() int

	// Call invokes the function on scalar (non-field) values and returns
	// one value per output.
	Call(ctx context.Context, args []T) ([]T, error)

	// Lift wraps this function as a lazy field operation over the given
	// (possibly mixed scalar/field) arguments, returning one Field value
	// per output without materializing any of them eagerly.
	Lift(args []Value) ([]Field, error)
}

// FieldConverter is implemented by a Type that knows how to lazily
// convert a Field of its base type into a Field of another base type,
// without materializing the scalar values (spec §4.10, "type
// conversions between fields ... are also lifted to field operations").
type FieldConverter interface {
	ConvertField(f Field, targetBase Type) (Field, error)
}

// Convert converts v to target, transparently lifting field conversions
// when v is a Field (spec §4.10) and falling back to target's default
// value when conversion is impossible or fails (spec §4.12). The
// second return reports whether an actual type mismatch forced the
// fallback (false), as opposed to the intentional default-load of a
// zero value or a no-op same-type pass-through (true); callers use
// this to log spec.md §7's type-mismatch recovery without mistaking
// the zero-value/same-type fast paths for one.
func Convert(v Value, target Type) (Value, bool) {
	if v.IsZero() {
		return Value{Type: target, Data: target.Default()}, true
	}
	if v.Type == target || (v.Type != nil && target != nil && v.Type.Name() == target.Name()) {
		return v, true
	}
	if f, ok := AsField(v); ok {
		if fc, ok := target.(FieldConverter); ok && v.Type.BaseType().ConvertibleTo(target.BaseType()) {
			if lifted, err := fc.ConvertField(f, target.BaseType()); err == nil {
				return Value{Type: target, Data: lifted}, true
			}
		}
		return Value{Type: target, Data: target.Default()}, false
	}
	if !v.Type.ConvertibleTo(target) {
		return Value{Type: target, Data: target.Default()}, false
	}
	out, ok := v.Type.Convert(v.Data, target)
	if !ok {
		return Value{Type: target, Data: target.Default()}, false
	}
	return Value{Type: target, Data: out}, true
}
