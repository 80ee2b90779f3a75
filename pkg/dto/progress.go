package dto

import "github.com/google/uuid"

// ProgressEvent is the WebSocket message emitted for every state transition
// of a submitted photo.
type ProgressEvent struct {
	PhotoID         uuid.UUID   `json:"photo_id"`
	CollectionID    uuid.UUID   `json:"collection_id"`
	State           string      `json:"state"`
	PersonIDs       []uuid.UUID `json:"person_ids,omitempty"`
	ExistingPhotoID uuid.UUID   `json:"existing_photo_id,omitempty"`
	Reason          string      `json:"reason,omitempty"`
}
