package model

import (
	"strings"
	"testing"
)

func TestFailureSignature_Equal_SameTypeAndPrefix(t *testing.T) {
	a := FailureSignature{Type: FailureApplyError, Signature: "patch does not apply: hunk 1"}
	b := FailureSignature{Type: FailureApplyError, Signature: "patch does not apply: hunk 1"}
	if !a.Equal(b) {
		t.Fatal("expected identical type+signature to be equal")
	}
}

func TestFailureSignature_Equal_DifferentTypeNeverEqual(t *testing.T) {
	a := FailureSignature{Type: FailureApplyError, Signature: "same text"}
	b := FailureSignature{Type: FailureCompileError, Signature: "same text"}
	if a.Equal(b) {
		t.Fatal("different failure types must never be considered equal")
	}
}

func TestFailureSignature_Equal_OnlyComparesFirst200Chars(t *testing.T) {
	longA := strings.Repeat("a", 200) + "TAIL-ONE"
	longB := strings.Repeat("a", 200) + "TAIL-TWO"
	a := FailureSignature{Type: FailureCompileError, Signature: longA}
	b := FailureSignature{Type: FailureCompileError, Signature: longB}
	if !a.Equal(b) {
		t.Fatal("expected signatures differing only after the first 200 characters to be equal")
	}
}

func TestFailureSignature_Equal_DiffersWithinFirst200Chars(t *testing.T) {
	a := FailureSignature{Type: FailureCompileError, Signature: "abc"}
	b := FailureSignature{Type: FailureCompileError, Signature: "abd"}
	if a.Equal(b) {
		t.Fatal("expected signatures differing within the first 200 characters to be unequal")
	}
}
