// Package resolver assigns each extracted face embedding to a person
// identity within a collection.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/observability"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
)

// Searcher is the nearest-neighbor query the resolver needs. storage.Store
// satisfies it exactly; the in-memory HNSW index satisfies it approximately.
type Searcher interface {
	NearestFaces(ctx context.Context, embedding models.Embedding, collectionID uuid.UUID, k int) ([]storage.FaceMatch, error)
}

// Decision is the outcome for one embedding. When NewPerson is non-nil the
// caller must persist it; the person does not exist until the photo's
// transaction commits.
type Decision struct {
	PersonID  uuid.UUID
	NewPerson *models.Person
	Distance  float32
	FailOpen  bool
}

// Resolver matches embeddings against the stored faces of a collection.
// The match rule is strict: distance < threshold joins the nearest face's
// person, distance == threshold or above mints a new person.
type Resolver struct {
	searcher  Searcher
	threshold float32
	dim       int
	logger    *slog.Logger
}

func New(searcher Searcher, threshold float64, dim int, logger *slog.Logger) *Resolver {
	return &Resolver{
		searcher:  searcher,
		threshold: float32(threshold),
		dim:       dim,
		logger:    logger,
	}
}

// Resolve decides the identity for a single embedding. A search failure does
// not fail the photo: the resolver falls open and mints a new person, which
// at worst splits one identity into two. The reverse error, merging two
// people, is never made on a failure path.
func (r *Resolver) Resolve(ctx context.Context, collectionID uuid.UUID, embedding models.Embedding) (Decision, error) {
	if err := embedding.Validate(r.dim); err != nil {
		return Decision{}, fmt.Errorf("resolve face: %w", err)
	}

	matches, err := r.searcher.NearestFaces(ctx, embedding, collectionID, 1)
	if err != nil {
		r.logger.Warn("nearest-face search failed, creating new person",
			"collection_id", collectionID,
			"error", err,
		)
		observability.ResolverFailOpen.Inc()
		d := r.newPersonDecision(collectionID)
		d.FailOpen = true
		return d, nil
	}

	if len(matches) > 0 && matches[0].Distance < r.threshold {
		return Decision{
			PersonID: matches[0].Face.PersonID,
			Distance: matches[0].Distance,
		}, nil
	}
	return r.newPersonDecision(collectionID), nil
}

func (r *Resolver) newPersonDecision(collectionID uuid.UUID) Decision {
	p := &models.Person{
		ID:           uuid.New(),
		CollectionID: collectionID,
		CreatedAt:    time.Now().UTC(),
	}
	return Decision{PersonID: p.ID, NewPerson: p}
}
