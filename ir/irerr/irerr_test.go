package irerr_test

import (
	"strings"
	"testing"

	"github.com/m4rs-mt/ILGPU-sub010/ir/irerr"
	"github.com/m4rs-mt/ILGPU-sub010/loc"
)

func TestKindString(t *testing.T) {
	cases := map[irerr.Kind]string{
		irerr.InvalidProgram:     "invalid program",
		irerr.NotSupported:       "not supported",
		irerr.InvalidOperation:   "invalid operation",
		irerr.ArgumentOutOfRange: "argument out of range",
		irerr.VerificationFailed: "verification failed",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}

func TestErrorMessageIncludesKindAndLocation(t *testing.T) {
	err := irerr.New(irerr.VerificationFailed, loc.Unknown, "block %s missing terminator", "bb0")
	msg := err.Error()
	if !strings.Contains(msg, "verification failed") {
		t.Fatalf("want the kind in the message, got %q", msg)
	}
	if !strings.Contains(msg, "bb0") {
		t.Fatalf("want the formatted detail in the message, got %q", msg)
	}
}

func TestResultAccumulatesAndReportsOK(t *testing.T) {
	var r irerr.Result
	if !r.OK() {
		t.Fatalf("an empty Result should report OK")
	}

	r.Add(irerr.New(irerr.VerificationFailed, loc.Unknown, "first"))
	if r.OK() {
		t.Fatalf("a Result with an error should not report OK")
	}
	if got := r.Error(); !strings.Contains(got, "first") {
		t.Fatalf("single-error Result.Error() should just be that error, got %q", got)
	}

	r.Add(irerr.New(irerr.InvalidProgram, loc.Unknown, "second"))
	combined := r.Error()
	if !strings.Contains(combined, "first") || !strings.Contains(combined, "second") {
		t.Fatalf("multi-error Result.Error() should include every error, got %q", combined)
	}
	if !strings.Contains(combined, "2 verification errors") {
		t.Fatalf("multi-error Result.Error() should report the count, got %q", combined)
	}
}
