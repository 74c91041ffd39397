package gsp

import (
	"errors"
	"testing"
)

func TestWrapErrPreservesUnderlyingError(t *testing.T) {
	base := errors.New("boom")
	wrapped := wrapErr(KindCompile, "abc.so", base)
	if !errors.Is(wrapped, base) {
		t.Errorf("expected errors.Is to find the underlying error")
	}
	var gerr *Error
	if !errors.As(wrapped, &gerr) {
		t.Fatalf("expected errors.As to match *Error")
	}
	if gerr.Kind != KindCompile {
		t.Errorf("got kind %v, want KindCompile", gerr.Kind)
	}
}

func TestWrapErrNilIsNil(t *testing.T) {
	if wrapErr(KindIO, "x", nil) != nil {
		t.Errorf("expected nil for nil input error")
	}
}
