// Package ingest orchestrates photo processing: extraction, dedup, identity
// resolution and persistence, with separately bounded concurrency for the
// CPU-bound and network-bound stages.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/abhishekdev057/studio-face-photos/internal/config"
	"github.com/abhishekdev057/studio-face-photos/internal/dedup"
	"github.com/abhishekdev057/studio-face-photos/internal/imaging"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/observability"
	"github.com/abhishekdev057/studio-face-photos/internal/resolver"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/internal/vision"
)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("pipeline stopped")

// BlobStore persists raw photo bytes and returns the storage reference kept
// on the photo row. Implemented by storage.MinIOStore.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// FaceIndexer learns newly persisted faces. Wired when the approximate
// in-memory backend serves resolver queries; nil with the pgvector backend,
// where committed rows are immediately visible to the next query.
type FaceIndexer interface {
	Add(collectionID uuid.UUID, face models.Face)
}

// ProgressFunc observes every state transition of every photo. Called from
// worker goroutines; implementations must be safe for concurrent use.
type ProgressFunc func(Result)

// Task is one submitted photo. StorageRef names the staged raw upload, which
// is removed once the photo reaches a terminal state; ContentHash is the
// fingerprint computed at upload time, recomputed here when absent.
type Task struct {
	PhotoID      uuid.UUID
	CollectionID uuid.UUID
	StorageRef   string
	ContentHash  string
	Data         []byte
}

// Pipeline is the two-stage bounded-concurrency photo processor. Extraction
// holds a slot of the CPU pool, persistence a slot of the network pool; the
// queue between submission and processing is a buffered channel.
type Pipeline struct {
	store     storage.Store
	blobs     BlobStore
	gate      *dedup.Gate
	resolver  *resolver.Resolver
	extractor vision.Extractor
	indexer   FaceIndexer
	counters  *Counters
	progress  ProgressFunc
	logger    *slog.Logger

	queue      chan Task
	extractSem *semaphore.Weighted
	persistSem *semaphore.Weighted
	maxDim     int

	// mu serializes Submit against Stop: Stop takes the write lock before
	// closing the queue, so no Submit can be mid-send on a closed channel.
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// New builds a pipeline from its collaborators. counters must be non-nil;
// indexer and progress may be nil.
func New(
	cfg config.IngestConfig,
	store storage.Store,
	blobs BlobStore,
	gate *dedup.Gate,
	res *resolver.Resolver,
	extractor vision.Extractor,
	counters *Counters,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:      store,
		blobs:      blobs,
		gate:       gate,
		resolver:   res,
		extractor:  extractor,
		counters:   counters,
		logger:     logger,
		queue:      make(chan Task, cfg.QueueSize),
		extractSem: semaphore.NewWeighted(int64(cfg.ExtractWorkers)),
		persistSem: semaphore.NewWeighted(int64(cfg.PersistWorkers)),
		maxDim:     cfg.MaxDimension,
	}
}

// SetIndexer attaches an in-memory face index to be kept in sync with
// persisted faces. Call before Start.
func (p *Pipeline) SetIndexer(idx FaceIndexer) { p.indexer = idx }

// SetProgress attaches a state-transition observer. Call before Start.
func (p *Pipeline) SetProgress(fn ProgressFunc) { p.progress = fn }

// Start launches the dispatcher. ctx cancellation aborts in-flight photos;
// use Stop for a draining shutdown.
func (p *Pipeline) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for task := range p.queue {
			observability.QueueDepth.Dec()
			p.wg.Add(1)
			go func(t Task) {
				defer p.wg.Done()
				p.process(ctx, t)
			}(task)
		}
	}()
}

// Submit queues one photo and returns its assigned id. The call blocks while
// the queue is full; it fails only when the pipeline is stopped or ctx ends.
func (p *Pipeline) Submit(ctx context.Context, collectionID uuid.UUID, data []byte) (uuid.UUID, error) {
	task := Task{PhotoID: uuid.New(), CollectionID: collectionID, Data: data}
	if err := p.SubmitTask(ctx, task); err != nil {
		return uuid.Nil, err
	}
	return task.PhotoID, nil
}

// SubmitTask queues a photo whose id was assigned upstream, at upload time.
func (p *Pipeline) SubmitTask(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- task:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.counters.queued.Add(1)
	observability.PhotosQueued.Inc()
	observability.QueueDepth.Inc()
	p.emit(Result{PhotoID: task.PhotoID, CollectionID: task.CollectionID, State: StateQueued})
	return nil
}

// Stop halts admission and waits for queued and in-flight photos to finish.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// process runs one photo to a terminal state. Failures are isolated: they
// update counters and emit a FAILED result, never abort the pipeline.
func (p *Pipeline) process(ctx context.Context, task Task) {
	result := p.run(ctx, task)

	p.counters.processed.Add(1)
	switch result.State {
	case StateDone:
		p.counters.uploaded.Add(1)
		observability.PhotosProcessed.WithLabelValues("accepted").Inc()
	case StateSkippedDuplicate:
		p.counters.skipped.Add(1)
		observability.PhotosProcessed.WithLabelValues("duplicate").Inc()
	case StateFailed:
		p.counters.errored.Add(1)
		observability.PhotosProcessed.WithLabelValues("failed").Inc()
		p.logger.Error("photo processing failed",
			"photo_id", task.PhotoID,
			"collection_id", task.CollectionID,
			"reason", result.Reason,
		)
	}

	// The staged raw upload has served its purpose; the photo row references
	// the normalized JPEG.
	if task.StorageRef != "" {
		if err := p.blobs.DeleteObject(ctx, task.StorageRef); err != nil {
			p.logger.Warn("remove staged upload failed",
				"photo_id", task.PhotoID, "ref", task.StorageRef, "error", err)
		}
	}
	p.emit(result)
}

func (p *Pipeline) run(ctx context.Context, task Task) Result {
	base := Result{PhotoID: task.PhotoID, CollectionID: task.CollectionID}
	contentHash := task.ContentHash
	if contentHash == "" {
		contentHash = dedup.Fingerprint(task.Data)
	}

	// CPU-bound stage.
	p.emit(withState(base, StateExtracting))
	if err := p.extractSem.Acquire(ctx, 1); err != nil {
		return failed(base, fmt.Errorf("acquire extract slot: %w", err))
	}
	start := time.Now()
	normalized, embeddings, err := p.extract(ctx, task.Data)
	p.extractSem.Release(1)
	observability.StageDuration.WithLabelValues("extract").Observe(time.Since(start).Seconds())
	if err != nil {
		return failed(base, err)
	}

	p.emit(withState(base, StateDedupChecking))
	existing, err := p.gate.Check(ctx, task.CollectionID, contentHash)
	if err != nil {
		// Advisory check only. The storage constraint still catches true
		// duplicates at persist time.
		p.logger.Warn("dedup pre-check failed, continuing",
			"photo_id", task.PhotoID, "error", err)
	}
	if existing != nil {
		r := withState(base, StateSkippedDuplicate)
		r.ExistingPhotoID = existing.ID
		return r
	}

	p.emit(withState(base, StateResolvingFaces))
	unit, personIDs, err := p.resolveFaces(ctx, task, contentHash, normalized, embeddings)
	if err != nil {
		return failed(base, err)
	}

	// Network-bound stage.
	p.emit(withState(base, StatePersisting))
	if err := p.persistSem.Acquire(ctx, 1); err != nil {
		return failed(base, fmt.Errorf("acquire persist slot: %w", err))
	}
	start = time.Now()
	err = p.persist(ctx, task, unit, normalized.JPEG)
	p.persistSem.Release(1)
	observability.StageDuration.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	if errors.Is(err, storage.ErrDuplicatePhoto) {
		// Lost the race against a concurrent identical upload. The whole
		// unit, new persons included, rolled back.
		winner, lookupErr := p.store.FindPhotoByHash(ctx, task.CollectionID, contentHash)
		r := withState(base, StateSkippedDuplicate)
		if lookupErr == nil && winner != nil {
			r.ExistingPhotoID = winner.ID
		}
		return r
	}
	if err != nil {
		return failed(base, err)
	}

	p.gate.MarkIngested(ctx, task.CollectionID, contentHash, task.PhotoID)
	observability.FacesDetected.Add(float64(len(unit.Faces)))
	observability.PersonsCreated.Add(float64(len(unit.NewPersons)))
	if p.indexer != nil {
		for _, f := range unit.Faces {
			p.indexer.Add(task.CollectionID, f)
		}
	}

	r := withState(base, StateDone)
	r.PersonIDs = personIDs
	return r
}

func (p *Pipeline) extract(ctx context.Context, data []byte) (*imaging.Normalized, []models.Embedding, error) {
	normalized, err := imaging.Normalize(data, p.maxDim)
	if err != nil {
		return nil, nil, fmt.Errorf("normalize photo: %w", err)
	}
	embeddings, err := p.extractor.Extract(ctx, normalized.JPEG)
	if err != nil {
		return nil, nil, fmt.Errorf("extract faces: %w", err)
	}
	return normalized, embeddings, nil
}

// resolveFaces assigns an identity to each embedding in detection order.
// Resolution is sequential within one photo.
func (p *Pipeline) resolveFaces(
	ctx context.Context,
	task Task,
	contentHash string,
	normalized *imaging.Normalized,
	embeddings []models.Embedding,
) (storage.PhotoUnit, []uuid.UUID, error) {
	now := time.Now().UTC()
	unit := storage.PhotoUnit{
		Photo: models.Photo{
			ID:           task.PhotoID,
			CollectionID: task.CollectionID,
			ContentHash:  contentHash,
			Width:        normalized.Width,
			Height:       normalized.Height,
			HadFaces:     len(embeddings) > 0,
			CreatedAt:    now,
		},
	}

	personIDs := make([]uuid.UUID, 0, len(embeddings))
	for _, emb := range embeddings {
		decision, err := p.resolver.Resolve(ctx, task.CollectionID, emb)
		if err != nil {
			return storage.PhotoUnit{}, nil, fmt.Errorf("resolve face: %w", err)
		}
		if decision.NewPerson != nil {
			unit.NewPersons = append(unit.NewPersons, *decision.NewPerson)
		}
		unit.Faces = append(unit.Faces, models.Face{
			ID:        uuid.New(),
			PhotoID:   task.PhotoID,
			PersonID:  decision.PersonID,
			Embedding: emb,
			CreatedAt: now,
		})
		personIDs = append(personIDs, decision.PersonID)
	}
	return unit, personIDs, nil
}

func (p *Pipeline) persist(ctx context.Context, task Task, unit storage.PhotoUnit, jpegData []byte) error {
	key := fmt.Sprintf("photos/%s/%s.jpg", task.CollectionID, task.PhotoID)
	ref, err := p.blobs.PutObject(ctx, key, jpegData, "image/jpeg")
	if err != nil {
		return fmt.Errorf("store photo bytes: %w", err)
	}
	unit.Photo.StorageRef = ref

	if err := p.store.PersistPhoto(ctx, unit); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) emit(r Result) {
	if p.progress != nil {
		p.progress(r)
	}
}

func withState(r Result, s State) Result {
	r.State = s
	return r
}

func failed(r Result, err error) Result {
	r.State = StateFailed
	r.Reason = err.Error()
	return r
}
