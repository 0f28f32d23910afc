// Package harvest extracts the permission datasets from resolved source
// trees and owns the newest-first fallback search across a release's
// point versions.
package harvest

import (
	"errors"

	"androidinfo/internal/httpx"
)

// ErrNotFound marks expected absence: the tree exists but lacks the
// harvested data, or no tag carries it at all. Callers skip on it;
// every other error is fatal to the run.
var ErrNotFound = errors.New("harvest: resource not found")

// mapNotFound converts an HTTP 404 into ErrNotFound at the adapter
// boundary; other errors pass through unchanged.
func mapNotFound(err error) error {
	if httpx.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}
