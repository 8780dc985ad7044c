// Package artifact persists pipeline outputs (rasters, composites) behind
// an opaque locator. The core never interprets locators; it only hands them
// back to callers and stores them on analysis records.
package artifact

import "context"

// Store saves artifact bytes under a caller-chosen key and returns a
// retrievable locator (a local path or a remote URL, depending on backend).
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}
