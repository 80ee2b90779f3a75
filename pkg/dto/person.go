package dto

import "github.com/google/uuid"

type PersonResponse struct {
	ID           uuid.UUID `json:"id"`
	CollectionID uuid.UUID `json:"collection_id"`
	FaceCount    int       `json:"face_count"`
	CreatedAt    string    `json:"created_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}

type SearchResultItem struct {
	Photo    PhotoResponse `json:"photo"`
	Distance float32       `json:"distance"`
}

type SearchResponse struct {
	Results []SearchResultItem `json:"results"`
	Total   int                `json:"total"`
}
