package version

import (
	"fmt"
	"io"
	"os"
)

// FprintVersion outputs the version string to the writer, in the following
// format, followed by a newline:
//
//	<cmd> <project> <version> <revision>
func FprintVersion(w io.Writer) {
	fmt.Fprintln(w, os.Args[0], Package(), Version(), Revision())
}

// PrintVersion outputs the version information, from FprintVersion, to
// stdout.
func PrintVersion() {
	FprintVersion(os.Stdout)
}
