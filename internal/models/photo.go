package models

import (
	"time"

	"github.com/google/uuid"
)

// Photo is one distinct uploaded image. ContentHash is the SHA-256 of the raw
// uploaded bytes, unique within a collection. HadFaces is set the moment the
// first face row for the photo is written and never cleared; a photo whose
// extraction yielded zero faces keeps HadFaces=false and is exempt from
// garbage collection.
type Photo struct {
	ID           uuid.UUID `json:"id" db:"id"`
	CollectionID uuid.UUID `json:"collection_id" db:"collection_id"`
	ContentHash  string    `json:"content_hash" db:"content_hash"`
	StorageRef   string    `json:"storage_ref" db:"storage_ref"`
	Width        int       `json:"width" db:"width"`
	Height       int       `json:"height" db:"height"`
	HadFaces     bool      `json:"-" db:"had_faces"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PhotoTask is the message published to NATS for worker processing.
type PhotoTask struct {
	PhotoID      uuid.UUID `json:"photo_id"`
	CollectionID uuid.UUID `json:"collection_id"`
	StorageRef   string    `json:"storage_ref"` // MinIO object key of the raw upload
	ContentHash  string    `json:"content_hash"`
	SubmittedAt  time.Time `json:"submitted_at"`
}
