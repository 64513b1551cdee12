// Package titles defines core types shared across subsystems.
package titles

// State represents the lifecycle state of a processing record.
type State string

// Record states persisted in the record store. A record is created PENDING
// and moved exactly once to PROCESSED or FAILED by the worker.
const (
	StatePending   State = "PENDING"
	StateProcessed State = "PROCESSED"
	StateFailed    State = "FAILED"
)

// IsTerminal reports whether no further transitions are expected.
func (s State) IsTerminal() bool {
	return s == StateProcessed || s == StateFailed
}

// Record is the persisted state for one URL-processing request.
//
// Title and BlobURL are set if and only if State is PROCESSED. The JSON
// field names match the wire schema consumed by existing pollers, which is
// why the blob locator is exposed as "s3_url".
type Record struct {
	ReqID   string `json:"req_id"`
	URL     string `json:"url"`
	State   State  `json:"recordstate"`
	BlobURL string `json:"s3_url,omitempty"`
	Title   string `json:"title,omitempty"`
}

// Task is the dispatch payload handed to the worker. Delivery is
// at-least-once; the worker must tolerate duplicates.
type Task struct {
	ReqID     string `json:"req_id"`
	Attempt   int    `json:"attempt,omitempty"`
	Submitted int64  `json:"submitted,omitempty"`
}
