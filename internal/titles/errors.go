package titles

import "errors"

// Sentinel errors shared by the stores, the fetcher, and the services.
// Callers branch with errors.Is; implementations wrap these with context.
var (
	// ErrNotFound is returned when no record exists for the requested id.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned by Create when the id is taken. Ids are
	// random, so hitting this means a duplicate create, not a collision.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrStoreUnavailable signals that backing storage could not be
	// provisioned or reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrWriteFailed signals a failed mutation against a store.
	ErrWriteFailed = errors.New("write failed")

	// ErrFetchFailed signals a network error or non-2xx remote response.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrNoTitle is returned when a document has no extractable title.
	ErrNoTitle = errors.New("no title found")
)
