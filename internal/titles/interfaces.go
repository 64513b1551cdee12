package titles

import (
	"context"
	"time"
)

// RecordStore persists processing records, one per request id.
type RecordStore interface {
	// EnsureSchema provisions the backing table. It is idempotent and safe
	// under concurrent first-callers; "already exists" is success.
	EnsureSchema(ctx context.Context) error

	// Create inserts a new PENDING record. It returns ErrAlreadyExists
	// rather than overwriting an existing id.
	Create(ctx context.Context, reqID, url string) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, reqID string) (Record, error)

	// UpdateTerminal applies the terminal state and result fields as a
	// single update. Re-applying the same terminal values is safe.
	UpdateTerminal(ctx context.Context, reqID string, state State, title, blobURL string) error
}

// BlobStore writes raw fetched payloads and returns a retrievable locator.
type BlobStore interface {
	// EnsureBucket provisions the bucket; "already exists" is success.
	EnsureBucket(ctx context.Context) error

	// Put writes content under a freshly generated key and returns the
	// public locator for it.
	Put(ctx context.Context, content []byte) (string, error)
}

// Fetcher retrieves the raw content of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Queue provides enqueue/dequeue semantics for dispatch tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
}

// IDGenerator produces request and blob-object ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
