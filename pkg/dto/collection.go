package dto

import "github.com/google/uuid"

type CreateCollectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type CollectionResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   string    `json:"created_at"`
}

type CollectionListResponse struct {
	Collections []CollectionResponse `json:"collections"`
	Total       int                  `json:"total"`
}
