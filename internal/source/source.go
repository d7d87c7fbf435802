// Package source defines the adapter that lists remote pages and fetches
// their content. The engine treats content as an opaque string.
package source

import (
	"context"
	"fmt"
)

// Adapter is the boundary to the remote document. Both calls are fallible;
// failures never crash the caller and are reported per item.
//
// Implementations must bound their own request time (the engine imposes no
// timeout of its own).
type Adapter interface {
	// List returns page labels in the remote's display order.
	List(ctx context.Context) ([]string, error)
	// Fetch returns the current content of the labeled page.
	Fetch(ctx context.Context, label string) (string, error)
}

// FetchError reports a failure to fetch one page. The cache keeps the stale
// entry for that page and continues with the rest.
type FetchError struct {
	Label string
	Err   error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %q: %v", e.Label, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }
