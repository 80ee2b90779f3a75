package models

import (
	"time"

	"github.com/google/uuid"
)

// Deletion event scopes.
const (
	DeletionScopePerson     = "person"
	DeletionScopePhoto      = "photo"
	DeletionScopeCollection = "collection"
)

// DeletionEvent is published to NATS whenever a person, photo or collection
// is removed, so workers can evict the affected faces from any in-memory
// search index. ID is the deleted entity; for the collection scope it equals
// CollectionID.
type DeletionEvent struct {
	Scope        string    `json:"scope"`
	CollectionID uuid.UUID `json:"collection_id"`
	ID           uuid.UUID `json:"id"`
	DeletedAt    time.Time `json:"deleted_at"`
}
