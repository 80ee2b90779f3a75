package index

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/resolver"
)

func vec(x float32) models.Embedding {
	return models.Embedding{x, 0, 0, 0}
}

func face(personID uuid.UUID, e models.Embedding) models.Face {
	return models.Face{
		ID:        uuid.New(),
		PhotoID:   uuid.New(),
		PersonID:  personID,
		Embedding: e,
	}
}

func TestNearestFacesOrdering(t *testing.T) {
	idx := NewFaceIndex()
	col := uuid.New()

	far := face(uuid.New(), vec(10))
	near := face(uuid.New(), vec(1))
	mid := face(uuid.New(), vec(5))
	idx.Add(col, far)
	idx.Add(col, near)
	idx.Add(col, mid)

	matches, err := idx.NearestFaces(context.Background(), vec(0), col, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, near.ID, matches[0].Face.ID)
	assert.Equal(t, mid.ID, matches[1].Face.ID)
	assert.Equal(t, far.ID, matches[2].Face.ID)
	assert.InDelta(t, 1.0, matches[0].Distance, 1e-6)
}

func TestNearestFacesCollectionScoped(t *testing.T) {
	idx := NewFaceIndex()
	colA := uuid.New()
	colB := uuid.New()

	idx.Add(colA, face(uuid.New(), vec(1)))
	idx.Add(colB, face(uuid.New(), vec(2)))

	matches, err := idx.NearestFaces(context.Background(), vec(0), colA, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Distance, 1e-6)
}

func TestNearestFacesEmptyCollection(t *testing.T) {
	idx := NewFaceIndex()

	matches, err := idx.NearestFaces(context.Background(), vec(0), uuid.New(), 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRemoveFiltersPersonFaces(t *testing.T) {
	idx := NewFaceIndex()
	col := uuid.New()
	gone := uuid.New()
	kept := uuid.New()

	idx.Add(col, face(gone, vec(1)))
	survivor := face(kept, vec(2))
	idx.Add(col, survivor)

	idx.Remove(gone)

	matches, err := idx.NearestFaces(context.Background(), vec(0), col, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, survivor.ID, matches[0].Face.ID)
}

func TestApplyPersonDeletionEvent(t *testing.T) {
	idx := NewFaceIndex()
	col := uuid.New()
	personID := uuid.New()
	idx.Add(col, face(personID, vec(1)))

	idx.Apply(models.DeletionEvent{
		Scope:        models.DeletionScopePerson,
		CollectionID: col,
		ID:           personID,
	})

	matches, err := idx.NearestFaces(context.Background(), vec(1.1), col, 1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestApplyPhotoDeletionEvent(t *testing.T) {
	idx := NewFaceIndex()
	col := uuid.New()

	gone := face(uuid.New(), vec(1))
	kept := face(uuid.New(), vec(2))
	idx.Add(col, gone)
	idx.Add(col, kept)

	idx.Apply(models.DeletionEvent{
		Scope:        models.DeletionScopePhoto,
		CollectionID: col,
		ID:           gone.PhotoID,
	})

	matches, err := idx.NearestFaces(context.Background(), vec(0), col, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, kept.ID, matches[0].Face.ID)
}

func TestApplyCollectionDeletionEvent(t *testing.T) {
	idx := NewFaceIndex()
	reset := uuid.New()
	other := uuid.New()
	idx.Add(reset, face(uuid.New(), vec(1)))
	idx.Add(other, face(uuid.New(), vec(1)))

	idx.Apply(models.DeletionEvent{
		Scope:        models.DeletionScopeCollection,
		CollectionID: reset,
		ID:           reset,
	})

	matches, err := idx.NearestFaces(context.Background(), vec(0), reset, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = idx.NearestFaces(context.Background(), vec(0), other, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

// A deleted person must never be matched again: after eviction the resolver
// has to mint a fresh identity even for an embedding well inside the match
// threshold of the evicted face.
func TestResolverNeverMatchesEvictedPerson(t *testing.T) {
	idx := NewFaceIndex()
	col := uuid.New()
	deleted := uuid.New()
	idx.Add(col, face(deleted, vec(1.0)))

	res := resolver.New(idx, 0.5, 4, slog.Default())

	idx.Apply(models.DeletionEvent{
		Scope:        models.DeletionScopePerson,
		CollectionID: col,
		ID:           deleted,
	})

	decision, err := res.Resolve(context.Background(), col, vec(1.1))
	require.NoError(t, err)
	require.NotNil(t, decision.NewPerson)
	assert.NotEqual(t, deleted, decision.PersonID)
}
