package stage

import (
	"errors"
	"testing"
)

func TestResultConstructors(t *testing.T) {
	t.Parallel()

	ok := OK(42)
	if !ok.Ok() || ok.Value != 42 || ok.Status != StatusOK {
		t.Fatalf("unexpected ok result %+v", ok)
	}

	miss := NotFound[string]("anchor absent")
	if miss.Ok() || miss.Status != StatusNotFound || miss.Reason != "anchor absent" || miss.Err != nil {
		t.Fatalf("unexpected not-found result %+v", miss)
	}

	boom := errors.New("boom")
	failed := Failed[int](boom)
	if failed.Ok() || !errors.Is(failed.Err, boom) || failed.Reason != "boom" {
		t.Fatalf("unexpected failed result %+v", failed)
	}
	if Failed[int](nil).Reason != "unknown failure" {
		t.Fatal("expected placeholder reason for nil error")
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	cases := map[Status]string{
		StatusOK:       "ok",
		StatusNotFound: "not_found",
		StatusFailed:   "failed",
		Status(9):      "status(9)",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(status), got, want)
		}
	}
}
