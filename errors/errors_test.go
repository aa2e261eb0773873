// Copyright 2017 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors

import (
	"context"
	"encoding/json"
	"os"
	"testing"
)

func roundtripJSON(in interface{}, out interface{}) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

func TestMarshalKind(t *testing.T) {
	for k := Other; k < maxKind; k++ {
		var (
			e1 = E("op", "arg", k)
			e2 = new(Error)
		)
		if err := roundtripJSON(e1, e2); err != nil {
			t.Error(err)
			continue
		}
		if !Match(e1, e2) {
			t.Errorf("%v does not match %v", e1, e2)
		}
	}
}

func TestMarshalChain(t *testing.T) {
	var (
		e1 = E("op1", Timeout, E("op2", Temporary))
		e2 = new(Error)
	)
	if err := roundtripJSON(e1, e2); err != nil {
		t.Fatal(err)
	}
	if !Match(e1, e2) {
		t.Errorf("%v does not match %v", e1, e2)
	}
}

func TestE(t *testing.T) {
	e := E("fetch", context.Canceled)
	if got, want := e, E("fetch", Canceled); !Match(want, got) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Collapse errors
	e = E("fetch", Timeout, E("lookup", Timeout))
	if got, want := e, E("fetch", Timeout, E("lookup")); !Match(want, got) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestError(t *testing.T) {
	e := E("open", "socket a->b", NotSupported, New(`node kind "unknown" not supported`))
	if got, want := e.Error(), `open socket a->b: operation not supported: node kind "unknown" not supported`; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	e = E("require", "input a", E(Invariant))
	if got, want := e.Error(), "require input a: invariant violation"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	e = E("require", "input a", E("lock", "node b", Invariant, os.ErrPermission))
	if got, want := e.Error(), "require input a:\n\tlock node b: invariant violation: permission denied"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestErrorUnsupportedArg(t *testing.T) {
	e := E("open", "socket a->b", 10, New(`node kind "unknown" not supported`))
	if got, want := e.Error(), `unknown type int, value 10 in error call`; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

type isTemporary bool

func (t isTemporary) Error() string   { return "maybe a temporary error" }
func (t isTemporary) Temporary() bool { return bool(t) }

func TestTransient(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want bool
	}{
		{New("some error"), false},
		{E(Timeout, "some timeout error"), true},
		{E(TooManyTries, "some too many tries error"), true},
		{E(Integrity, "some integrity error"), false},
		{E(Fatal, "some fatal error"), false},
		{E(Unavailable, "some unavailable error"), true},
	} {
		if got, want := Transient(tc.err), tc.want; got != want {
			t.Errorf("Transient(%v): got %v, want %v", tc.err, got, want)
		}
	}
}

func TestMatch(t *testing.T) {
	base := E("require", "socket a", Invariant, New("missing value"))
	if !Match(Invariant, base) {
		t.Errorf("expected kind match")
	}
	if !Match(E("require", "socket a", Invariant), base) {
		t.Errorf("expected op+kind match")
	}
	if Match(E("require", "socket b", Invariant), base) {
		t.Errorf("expected arg mismatch to fail")
	}
}

func TestRecover(t *testing.T) {
	if Recover(nil) != nil {
		t.Fatal("expected nil")
	}
	e := E("op", Timeout)
	if Recover(e) != e {
		t.Fatal("expected identity for *Error")
	}
	plain := New("plain error")
	r := Recover(plain)
	if r.Kind != Other || r.Err != plain {
		t.Fatalf("got %+v", r)
	}
}
