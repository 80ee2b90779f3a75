package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a cluster identity. It carries no explicit centroid; the cluster
// is represented implicitly by the set of faces pointing at it.
type Person struct {
	ID           uuid.UUID `json:"id" db:"id"`
	CollectionID uuid.UUID `json:"collection_id" db:"collection_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Face is one detected face: an embedding owned by exactly one photo and
// exactly one person.
type Face struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PhotoID   uuid.UUID `json:"photo_id" db:"photo_id"`
	PersonID  uuid.UUID `json:"person_id" db:"person_id"`
	Embedding Embedding `json:"-" db:"embedding"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
