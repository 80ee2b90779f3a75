package models

import (
	"time"

	"github.com/google/uuid"
)

// Collection is a namespace (an event, e.g. one wedding) owning photos and persons.
type Collection struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
