package dcontext

import "context"

// DetachedContext returns a context that won't be canceled when the parent
// is canceled. The mutation engine uses this in Unlink to finish the
// Metadata Store delete after the blob has already been removed, so a
// host-side cancellation of the upcall cannot leave a File row with no
// backing blob.
//
// The detached context preserves all values from the parent (logger, mount
// id, ...) but removes cancellation/deadline behavior.
func DetachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
