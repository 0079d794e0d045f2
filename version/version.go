// Package version carries build-time identification for the tagfs binary.
package version

// mainpkg is the canonical import path under which the project was built.
var mainpkg = "github.com/dmorris/tagfs"

// version is the release tag of the running binary. Replaced at link time
// with -ldflags during a real build; the value here covers `go run`/`go get`.
var version = "v0.1.0+unknown"

// revision is the VCS revision used to build the program, filled at link
// time.
var revision = ""

// Package returns the canonical import path under which the binary was
// built.
func Package() string {
	return mainpkg
}

// Version returns the module version the running binary was built from.
func Version() string {
	return version
}

// Revision returns the VCS revision used to build the program.
func Revision() string {
	return revision
}
