package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
)

// FaceMatch is one nearest-neighbor result: a stored face and its Euclidean
// distance to the query embedding.
type FaceMatch struct {
	Face     models.Face
	Distance float32
}

// PhotoMatch is one photo-level search result, carrying the distance of the
// best-matching face in that photo.
type PhotoMatch struct {
	Photo    models.Photo
	Distance float32
}

// PhotoUnit is the atomic persistence unit for one ingested photo: the photo
// row, the person rows the resolver decided to create, and the face rows.
// Either all of it commits or none of it does; a duplicate-hash conflict
// rolls back the new persons along with everything else.
type PhotoUnit struct {
	Photo      models.Photo
	NewPersons []models.Person
	Faces      []models.Face
}

// Store is the single source of truth for collections, persons, photos and
// face embeddings, including the nearest-neighbor query the resolver depends
// on. Implemented by PostgresStore (exact, pgvector) and by the in-memory
// store (brute-force scan) used in tests.
type Store interface {
	// Collections.
	CreateCollection(ctx context.Context, name, description string) (*models.Collection, error)
	GetCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error)
	ListCollections(ctx context.Context) ([]models.Collection, error)
	ResetCollection(ctx context.Context, id uuid.UUID) error

	// Dedup pre-check. Returns (nil, nil) when no photo with the hash
	// exists in the collection.
	FindPhotoByHash(ctx context.Context, collectionID uuid.UUID, contentHash string) (*models.Photo, error)

	// Vector store. NearestFaces returns matches ordered by ascending
	// distance, ties broken by insertion order.
	InsertFace(ctx context.Context, face *models.Face) error
	NearestFaces(ctx context.Context, embedding models.Embedding, collectionID uuid.UUID, k int) ([]FaceMatch, error)
	ListFacesByCollection(ctx context.Context, collectionID uuid.UUID) ([]models.Face, error)
	CountFacesByPerson(ctx context.Context, personID uuid.UUID) (int, error)
	CountFacesByPhoto(ctx context.Context, photoID uuid.UUID) (int, error)

	// Ingestion persistence.
	PersistPhoto(ctx context.Context, unit PhotoUnit) error

	// Lookups.
	GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error)
	ListPhotos(ctx context.Context, collectionID uuid.UUID, limit int) ([]models.Photo, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	ListPersons(ctx context.Context, collectionID uuid.UUID) ([]models.Person, error)
	ListPersonPhotos(ctx context.Context, personID uuid.UUID) ([]models.Photo, error)
	SearchPhotos(ctx context.Context, embedding models.Embedding, collectionID uuid.UUID, maxDistance float64, limit int) ([]PhotoMatch, error)

	// Garbage collection. Both deletes re-verify face counts inside the
	// same transaction that performs the delete.
	DeletePerson(ctx context.Context, personID uuid.UUID) error
	DeletePhoto(ctx context.Context, photoID uuid.UUID) error

	Ping(ctx context.Context) error
}
