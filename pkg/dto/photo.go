package dto

import "github.com/google/uuid"

type PhotoResponse struct {
	ID           uuid.UUID `json:"id"`
	CollectionID uuid.UUID `json:"collection_id"`
	ContentHash  string    `json:"content_hash"`
	StorageRef   string    `json:"storage_ref"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    string    `json:"created_at"`
}

type PhotoListResponse struct {
	Photos []PhotoResponse `json:"photos"`
	Total  int             `json:"total"`
}

// UploadAcceptedResponse acknowledges a queued upload; processing is
// asynchronous and its outcome arrives over the WebSocket.
type UploadAcceptedResponse struct {
	PhotoID uuid.UUID `json:"photo_id"`
	State   string    `json:"state"`
}

// UploadDuplicateResponse reports a content hash already present in the
// collection. Not an error.
type UploadDuplicateResponse struct {
	State           string    `json:"state"`
	ExistingPhotoID uuid.UUID `json:"existing_photo_id"`
}
