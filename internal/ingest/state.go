package ingest

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// State is the processing stage of one submitted photo. DONE,
// SKIPPED_DUPLICATE and FAILED are terminal.
type State string

const (
	StateQueued           State = "QUEUED"
	StateExtracting       State = "EXTRACTING"
	StateDedupChecking    State = "DEDUP_CHECKING"
	StateResolvingFaces   State = "RESOLVING_FACES"
	StatePersisting       State = "PERSISTING"
	StateDone             State = "DONE"
	StateSkippedDuplicate State = "SKIPPED_DUPLICATE"
	StateFailed           State = "FAILED"
)

// Result is the tagged outcome for one photo. Errors never cross this
// boundary as raw values; FAILED results carry the cause as text.
type Result struct {
	PhotoID         uuid.UUID   `json:"photo_id"`
	CollectionID    uuid.UUID   `json:"collection_id"`
	State           State       `json:"state"`
	PersonIDs       []uuid.UUID `json:"person_ids,omitempty"`
	ExistingPhotoID uuid.UUID   `json:"existing_photo_id,omitempty"`
	Reason          string      `json:"reason,omitempty"`
}

// Counters is the cumulative state of one pipeline instance. It is owned by
// the pipeline's creator and passed in, never process-global.
type Counters struct {
	queued    atomic.Uint64
	processed atomic.Uint64
	uploaded  atomic.Uint64
	skipped   atomic.Uint64
	errored   atomic.Uint64
}

func NewCounters() *Counters { return &Counters{} }

// Snapshot is a point-in-time read of the counters. Processed counts every
// terminal outcome; uploaded, skipped and errored partition it.
type Snapshot struct {
	Queued    uint64 `json:"queued"`
	Processed uint64 `json:"processed"`
	Uploaded  uint64 `json:"uploaded"`
	Skipped   uint64 `json:"skipped"`
	Errored   uint64 `json:"errored"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Queued:    c.queued.Load(),
		Processed: c.processed.Load(),
		Uploaded:  c.uploaded.Load(),
		Skipped:   c.skipped.Load(),
		Errored:   c.errored.Load(),
	}
}
