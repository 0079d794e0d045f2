package errcode

import (
	"errors"
	"syscall"
	"testing"
)

func TestRegisteredCodesHaveStableIdentity(t *testing.T) {
	if len(byID) == 0 {
		t.Fatal("no codes registered")
	}

	for id, c := range byID {
		if c.ID() != id {
			t.Fatalf("code stored under %q reports ID() = %q", id, c.ID())
		}
		if c.Errno() == 0 {
			t.Fatalf("code %q has no errno", id)
		}
	}
}

func TestRegisterPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected register to panic on duplicate id")
		}
	}()
	register("NOENT", syscall.ENOENT, "dup")
}

func TestErrorUnwrapsToCode(t *testing.T) {
	err := New(NoEnt, "/music/jazz")
	if !errors.Is(err, NoEnt) {
		t.Fatalf("errors.Is(err, NoEnt) = false")
	}
	if got := ToErrno(err); got != syscall.ENOENT {
		t.Fatalf("ToErrno() = %v, want ENOENT", got)
	}
}

func TestErrorMessageIncludesDetail(t *testing.T) {
	err := Newf(Exist, "tag %q", "jazz")
	want := `a tag or file already exists under that name: tag "jazz"`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestToErrnoDefaultsToEIOForUnknownErrors(t *testing.T) {
	if got := ToErrno(errors.New("boom")); got != syscall.EIO {
		t.Fatalf("ToErrno(unknown) = %v, want EIO", got)
	}
}

func TestToErrnoNilIsZero(t *testing.T) {
	if got := ToErrno(nil); got != 0 {
		t.Fatalf("ToErrno(nil) = %v, want 0", got)
	}
}
