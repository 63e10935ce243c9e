// Package store persists the panel document. The entire installation state
// is one serialized record kept under a single fixed key; implementations
// cover an in-memory store (dev/testing), a local file (the default), and an
// etcd cluster (production deployments).
package store

import "context"

// SnapshotStore reads and writes the single persisted panel document.
type SnapshotStore interface {
	// Load returns the stored document. found is false when nothing has been
	// saved yet; callers then fall back to a freshly generated default state.
	Load(ctx context.Context) (data []byte, found bool, err error)

	// Save replaces the stored document.
	Save(ctx context.Context, data []byte) error

	// Close releases any resources held by the backend.
	Close() error
}
