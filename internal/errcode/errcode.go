// Package errcode provides a small toolkit for defining and assigning
// error codes to filesystem operation failures, mirrored on the
// registry/api/errcode pattern: a central registry of descriptors keyed by a
// symbolic name, each carrying the concrete payload a caller needs: here a
// syscall.Errno instead of an HTTP status, since every operation in this
// tree answers a FUSE upcall rather than an HTTP request.
package errcode

import (
	"fmt"
	"sync"
	"syscall"
)

// Code is a registered class of failure. Its zero value is not valid; every
// Code in use is produced by register() below.
type Code struct {
	id      string
	errno   syscall.Errno
	message string
}

// ID returns the symbolic name the code was registered under, e.g. "NOENT".
func (c Code) ID() string { return c.id }

// Errno returns the POSIX errno this code is reported to the kernel as.
func (c Code) Errno() syscall.Errno { return c.errno }

func (c Code) Error() string { return c.message }

var (
	registerLock sync.Mutex
	byID         = map[string]Code{}
)

func register(id string, errno syscall.Errno, message string) Code {
	registerLock.Lock()
	defer registerLock.Unlock()

	if _, ok := byID[id]; ok {
		panic(fmt.Sprintf("errcode: %q is already registered", id))
	}

	c := Code{id: id, errno: errno, message: message}
	byID[id] = c
	return c
}

// The fixed vocabulary of failures a filesystem operation can report, per
// §7 of the design. Each corresponds to exactly one POSIX errno; callers
// should never construct a syscall.Errno by hand outside of this package.
var (
	NoEnt = register("NOENT", syscall.ENOENT,
		"path does not resolve, names an unknown tag, or is inconsistent with the file's true tag set")
	Exist = register("EEXIST", syscall.EEXIST,
		"a tag or file already exists under that name")
	NotEmpty = register("NOTEMPTY", syscall.ENOTEMPTY,
		"tag still has members")
	Perm = register("EPERM", syscall.EPERM,
		"disallowed name, or link target leaf does not match source leaf")
	NoSys = register("ENOSYS", syscall.ENOSYS,
		"unsupported rename: non-terminal tag-path divergence")
	Access = register("EACCES", syscall.EACCES,
		"underlying blob denied the requested access")
	IO = register("EIO", syscall.EIO,
		"blob store I/O failure")
)

// Error pairs a registered Code with an optional detail string identifying
// what, specifically, failed: the path, tag, or file name involved.
type Error struct {
	Code   Code
	Detail string
}

func (e Error) Error() string {
	if e.Detail == "" {
		return e.Code.message
	}
	return fmt.Sprintf("%s: %s", e.Code.message, e.Detail)
}

// Unwrap lets errors.Is(err, errcode.NoEnt) work directly against an Error,
// since Code itself implements error.
func (e Error) Unwrap() error { return e.Code }

// Errno reports the POSIX errno this error should surface to the kernel as.
func (e Error) Errno() syscall.Errno { return e.Code.errno }

// New wraps a registered Code with a detail string describing what failed.
func New(c Code, detail string) error {
	return Error{Code: c, Detail: detail}
}

// Newf is New with a formatted detail.
func Newf(c Code, format string, args ...any) error {
	return Error{Code: c, Detail: fmt.Sprintf(format, args...)}
}

// errnoer is implemented by both Code and Error.
type errnoer interface {
	Errno() syscall.Errno
}

// ToErrno maps any error produced by this tree back to a POSIX errno for
// the FUSE adapter. Unregistered errors (a bug, or a forwarded Blob Store
// syscall failure that isn't already a syscall.Errno) degrade to EIO.
func ToErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if en, ok := err.(errnoer); ok {
		return en.Errno()
	}
	if errno, ok := err.(syscall.Errno); ok {
		return errno
	}
	return syscall.EIO
}
