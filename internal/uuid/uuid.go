// Package uuid generates the temporary names the Blob Store stages a new
// symlink blob under before renaming it into place, so a crash
// mid-operation leaves an orphan with an unmistakable name instead of
// colliding with a real File.
package uuid

import (
	"github.com/google/uuid"
)

// NewString returns a new time-ordered (V7) UUID string. Panics on error,
// matching google/uuid's own NewString() compatibility guarantee.
func NewString() string {
	return uuid.Must(uuid.NewV7()).String()
}
