package dedup

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/internal/storage/memstore"
)

func TestFingerprintStable(t *testing.T) {
	a := Fingerprint([]byte("same bytes"))
	b := Fingerprint([]byte("same bytes"))
	c := Fingerprint([]byte("other bytes"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestCheckAcceptsNewHash(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	gate := NewGate(store, nil, slog.Default())

	existing, err := gate.Check(ctx, col.ID, Fingerprint([]byte("fresh")))
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestCheckRejectsKnownHash(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	hash := Fingerprint([]byte("already stored"))
	photo := testPhoto(col.ID, hash)
	require.NoError(t, store.PersistPhoto(ctx, storage.PhotoUnit{Photo: photo}))

	gate := NewGate(store, nil, slog.Default())

	existing, err := gate.Check(ctx, col.ID, hash)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, photo.ID, existing.ID)
}

func TestCheckScopedByCollection(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	colA, err := store.CreateCollection(ctx, "a", "")
	require.NoError(t, err)
	colB, err := store.CreateCollection(ctx, "b", "")
	require.NoError(t, err)

	hash := Fingerprint([]byte("shared bytes"))
	require.NoError(t, store.PersistPhoto(ctx, storage.PhotoUnit{Photo: testPhoto(colA.ID, hash)}))

	gate := NewGate(store, nil, slog.Default())

	existing, err := gate.Check(ctx, colB.ID, hash)
	require.NoError(t, err)
	assert.Nil(t, existing, "same content in another collection is not a duplicate")
}

func testPhoto(collectionID uuid.UUID, hash string) models.Photo {
	return models.Photo{
		ID:           uuid.New(),
		CollectionID: collectionID,
		ContentHash:  hash,
		StorageRef:   "photos/" + hash,
		CreatedAt:    time.Now(),
	}
}
