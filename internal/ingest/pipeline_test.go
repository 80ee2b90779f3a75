package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekdev057/studio-face-photos/internal/config"
	"github.com/abhishekdev057/studio-face-photos/internal/dedup"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/resolver"
	"github.com/abhishekdev057/studio-face-photos/internal/storage/memstore"
	"github.com/abhishekdev057/studio-face-photos/internal/vision"
)

// testImage returns PNG bytes whose decoded width selects the embeddings the
// stub extractor will report. Distinct widths give distinct content hashes.
func testImage(t *testing.T, width int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, 8))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// extractorByWidth maps decoded image width to a fixed embedding list.
func extractorByWidth(faces map[int][]models.Embedding) vision.Extractor {
	return vision.ExtractorFunc(func(_ context.Context, data []byte) ([]models.Embedding, error) {
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return faces[img.Bounds().Dx()], nil
	})
}

type nullBlobs struct{}

func (nullBlobs) PutObject(_ context.Context, key string, _ []byte, _ string) (string, error) {
	return key, nil
}

func (nullBlobs) DeleteObject(context.Context, string) error { return nil }

// recordingBlobs tracks object keys written and removed.
type recordingBlobs struct {
	mu      sync.Mutex
	put     []string
	deleted []string
}

func (b *recordingBlobs) PutObject(_ context.Context, key string, _ []byte, _ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.put = append(b.put, key)
	return key, nil
}

func (b *recordingBlobs) DeleteObject(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	return nil
}

type resultRecorder struct {
	mu      sync.Mutex
	results []Result
}

func (r *resultRecorder) record(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultRecorder) terminal(photoID uuid.UUID) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		if res.PhotoID != photoID {
			continue
		}
		switch res.State {
		case StateDone, StateSkippedDuplicate, StateFailed:
			return res, true
		}
	}
	return Result{}, false
}

func emb(x float32) models.Embedding {
	return models.Embedding{x, 0, 0, 0}
}

func testConfig() config.IngestConfig {
	return config.IngestConfig{
		ExtractWorkers: 1,
		PersistWorkers: 3,
		QueueSize:      16,
		MaxDimension:   1280,
	}
}

func newTestPipeline(t *testing.T, store *memstore.Store, extractor vision.Extractor) (*Pipeline, *Counters, *resultRecorder) {
	t.Helper()
	logger := slog.Default()
	counters := NewCounters()
	rec := &resultRecorder{}

	p := New(
		testConfig(),
		store,
		nullBlobs{},
		dedup.NewGate(store, nil, logger),
		resolver.New(store, 0.5, 4, logger),
		extractor,
		counters,
		logger,
	)
	p.SetProgress(rec.record)
	return p, counters, rec
}

func TestIngestDuplicateSkipped(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	p, counters, rec := newTestPipeline(t, store, extractorByWidth(map[int][]models.Embedding{
		100: {emb(1)},
	}))
	p.Start(ctx)

	data := testImage(t, 100)
	first, err := p.Submit(ctx, col.ID, data)
	require.NoError(t, err)
	second, err := p.Submit(ctx, col.ID, data)
	require.NoError(t, err)
	p.Stop()

	photos, err := store.ListPhotos(ctx, col.ID, 0)
	require.NoError(t, err)
	assert.Len(t, photos, 1, "identical bytes must yield exactly one photo row")

	firstRes, ok := rec.terminal(first)
	require.True(t, ok)
	secondRes, ok := rec.terminal(second)
	require.True(t, ok)

	states := []State{firstRes.State, secondRes.State}
	assert.Contains(t, states, StateDone)
	assert.Contains(t, states, StateSkippedDuplicate)

	snap := counters.Snapshot()
	assert.Equal(t, uint64(2), snap.Queued)
	assert.Equal(t, uint64(2), snap.Processed)
	assert.Equal(t, uint64(1), snap.Uploaded)
	assert.Equal(t, uint64(1), snap.Skipped)
	assert.Equal(t, uint64(0), snap.Errored)
}

func TestIngestFacelessPhotoPersisted(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	p, _, rec := newTestPipeline(t, store, extractorByWidth(nil))
	p.Start(ctx)

	id, err := p.Submit(ctx, col.ID, testImage(t, 50))
	require.NoError(t, err)
	p.Stop()

	res, ok := rec.terminal(id)
	require.True(t, ok)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.PersonIDs)

	photo, err := store.GetPhoto(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, photo)
	assert.False(t, photo.HadFaces)

	persons, err := store.ListPersons(ctx, col.ID)
	require.NoError(t, err)
	assert.Empty(t, persons)
}

func TestIngestFailureIsolated(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	boom := errors.New("model crashed")
	extractor := vision.ExtractorFunc(func(_ context.Context, data []byte) ([]models.Embedding, error) {
		img, _, derr := image.Decode(bytes.NewReader(data))
		if derr != nil {
			return nil, derr
		}
		if img.Bounds().Dx() == 66 {
			return nil, boom
		}
		return []models.Embedding{emb(1)}, nil
	})

	p, counters, rec := newTestPipeline(t, store, extractor)
	p.Start(ctx)

	bad, err := p.Submit(ctx, col.ID, testImage(t, 66))
	require.NoError(t, err)
	good, err := p.Submit(ctx, col.ID, testImage(t, 77))
	require.NoError(t, err)
	p.Stop()

	badRes, ok := rec.terminal(bad)
	require.True(t, ok)
	assert.Equal(t, StateFailed, badRes.State)
	assert.Contains(t, badRes.Reason, "model crashed")

	goodRes, ok := rec.terminal(good)
	require.True(t, ok)
	assert.Equal(t, StateDone, goodRes.State)

	snap := counters.Snapshot()
	assert.Equal(t, uint64(1), snap.Errored)
	assert.Equal(t, uint64(1), snap.Uploaded)

	photo, err := store.GetPhoto(ctx, bad)
	require.NoError(t, err)
	assert.Nil(t, photo, "failed photo leaves no row behind")
}

func TestIngestMatchesFacesAcrossPhotos(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	// Second embedding is 0.2 away from the first, within the 0.5 threshold.
	p, _, rec := newTestPipeline(t, store, extractorByWidth(map[int][]models.Embedding{
		10: {emb(1.0)},
		20: {emb(1.2)},
	}))
	p.Start(ctx)

	a, err := p.Submit(ctx, col.ID, testImage(t, 10))
	require.NoError(t, err)
	p.Stop()

	aRes, ok := rec.terminal(a)
	require.True(t, ok)
	require.Equal(t, StateDone, aRes.State)
	require.Len(t, aRes.PersonIDs, 1)

	// Separate pipeline instance for the second photo keeps ordering
	// deterministic without relying on queue timing.
	p2, _, rec2 := newTestPipeline(t, store, extractorByWidth(map[int][]models.Embedding{
		20: {emb(1.2)},
	}))
	p2.Start(ctx)
	b, err := p2.Submit(ctx, col.ID, testImage(t, 20))
	require.NoError(t, err)
	p2.Stop()

	bRes, ok := rec2.terminal(b)
	require.True(t, ok)
	require.Equal(t, StateDone, bRes.State)
	require.Len(t, bRes.PersonIDs, 1)
	assert.Equal(t, aRes.PersonIDs[0], bRes.PersonIDs[0], "close faces share one identity")

	persons, err := store.ListPersons(ctx, col.ID)
	require.NoError(t, err)
	assert.Len(t, persons, 1)

	// Deleting the person removes both faces and both now-empty photos.
	require.NoError(t, store.DeletePerson(ctx, aRes.PersonIDs[0]))

	photos, err := store.ListPhotos(ctx, col.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestStagedUploadRemovedAfterProcessing(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	logger := slog.Default()
	blobs := &recordingBlobs{}
	rec := &resultRecorder{}
	p := New(
		testConfig(),
		store,
		blobs,
		dedup.NewGate(store, nil, logger),
		resolver.New(store, 0.5, 4, logger),
		extractorByWidth(nil),
		NewCounters(),
		logger,
	)
	p.SetProgress(rec.record)
	p.Start(ctx)

	data := testImage(t, 40)
	task := Task{
		PhotoID:      uuid.New(),
		CollectionID: col.ID,
		StorageRef:   "uploads/" + col.ID.String() + "/staged",
		ContentHash:  dedup.Fingerprint(data),
		Data:         data,
	}
	require.NoError(t, p.SubmitTask(ctx, task))
	p.Stop()

	res, ok := rec.terminal(task.PhotoID)
	require.True(t, ok)
	assert.Equal(t, StateDone, res.State)

	blobs.mu.Lock()
	defer blobs.mu.Unlock()
	assert.Contains(t, blobs.deleted, task.StorageRef, "staged raw upload must not outlive processing")
	for _, key := range blobs.put {
		assert.NotContains(t, blobs.deleted, key, "normalized photo object must survive")
	}
}

func TestSubmittedContentHashIsAuthoritative(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	p, _, rec := newTestPipeline(t, store, extractorByWidth(nil))
	p.Start(ctx)

	// A sentinel distinct from the recomputed fingerprint proves the
	// upload-time hash is the one persisted and deduplicated on.
	const sentinel = "upstream-fingerprint"
	task := Task{
		PhotoID:      uuid.New(),
		CollectionID: col.ID,
		ContentHash:  sentinel,
		Data:         testImage(t, 45),
	}
	require.NoError(t, p.SubmitTask(ctx, task))
	p.Stop()

	res, ok := rec.terminal(task.PhotoID)
	require.True(t, ok)
	require.Equal(t, StateDone, res.State)

	photo, err := store.FindPhotoByHash(ctx, col.ID, sentinel)
	require.NoError(t, err)
	require.NotNil(t, photo, "photo row carries the upload-time fingerprint")
	assert.Equal(t, task.PhotoID, photo.ID)
}

func TestSubmitAfterStop(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	col, err := store.CreateCollection(ctx, "wedding", "")
	require.NoError(t, err)

	p, _, _ := newTestPipeline(t, store, extractorByWidth(nil))
	p.Start(ctx)
	p.Stop()

	_, err = p.Submit(ctx, col.ID, testImage(t, 30))
	assert.ErrorIs(t, err, ErrStopped)
}
