package resolver

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
)

type stubSearcher struct {
	matches []storage.FaceMatch
	err     error
}

func (s *stubSearcher) NearestFaces(context.Context, models.Embedding, uuid.UUID, int) ([]storage.FaceMatch, error) {
	return s.matches, s.err
}

func emb(x float32) models.Embedding {
	return models.Embedding{x, 0, 0, 0}
}

func TestResolveMatchBelowThreshold(t *testing.T) {
	knownPerson := uuid.New()
	r := New(&stubSearcher{matches: []storage.FaceMatch{
		{Face: models.Face{ID: uuid.New(), PersonID: knownPerson}, Distance: 0.49},
	}}, 0.5, 4, slog.Default())

	d, err := r.Resolve(context.Background(), uuid.New(), emb(1))
	require.NoError(t, err)
	assert.Equal(t, knownPerson, d.PersonID)
	assert.Nil(t, d.NewPerson)
	assert.False(t, d.FailOpen)
}

func TestResolveDistanceAtThresholdIsNoMatch(t *testing.T) {
	r := New(&stubSearcher{matches: []storage.FaceMatch{
		{Face: models.Face{ID: uuid.New(), PersonID: uuid.New()}, Distance: 0.5},
	}}, 0.5, 4, slog.Default())

	col := uuid.New()
	d, err := r.Resolve(context.Background(), col, emb(1))
	require.NoError(t, err)
	require.NotNil(t, d.NewPerson)
	assert.Equal(t, d.NewPerson.ID, d.PersonID)
	assert.Equal(t, col, d.NewPerson.CollectionID)
}

func TestResolveEmptyCollection(t *testing.T) {
	r := New(&stubSearcher{}, 0.5, 4, slog.Default())

	d, err := r.Resolve(context.Background(), uuid.New(), emb(1))
	require.NoError(t, err)
	assert.NotNil(t, d.NewPerson)
}

func TestResolveFailOpenOnSearchError(t *testing.T) {
	r := New(&stubSearcher{err: errors.New("connection refused")}, 0.5, 4, slog.Default())

	d, err := r.Resolve(context.Background(), uuid.New(), emb(1))
	require.NoError(t, err, "search failure must not fail the photo")
	assert.True(t, d.FailOpen)
	assert.NotNil(t, d.NewPerson)
}

func TestResolveRejectsWrongDimension(t *testing.T) {
	r := New(&stubSearcher{}, 0.5, 128, slog.Default())

	_, err := r.Resolve(context.Background(), uuid.New(), emb(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}
