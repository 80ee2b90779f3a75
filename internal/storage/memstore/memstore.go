// Package memstore provides an in-memory implementation of storage.Store
// using a brute-force nearest-neighbor scan. Suitable for tests and small
// single-process deployments; semantics mirror the Postgres store, including
// the dedup uniqueness check and the garbage-collection sweeps.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
)

type Store struct {
	mu          sync.RWMutex
	collections map[uuid.UUID]*models.Collection
	persons     map[uuid.UUID]*models.Person
	photos      map[uuid.UUID]*models.Photo
	faces       map[uuid.UUID]*models.Face
	faceOrder   []uuid.UUID // insertion order, for deterministic tie-breaks

	// Error injection for tests.
	NearestError error
	PersistError error
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[uuid.UUID]*models.Collection),
		persons:     make(map[uuid.UUID]*models.Person),
		photos:      make(map[uuid.UUID]*models.Photo),
		faces:       make(map[uuid.UUID]*models.Face),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// --- Collections ---

func (s *Store) CreateCollection(_ context.Context, name, description string) (*models.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &models.Collection{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.collections[c.ID] = c
	out := *c
	return &out, nil
}

func (s *Store) GetCollection(_ context.Context, id uuid.UUID) (*models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (s *Store) ListCollections(context.Context) ([]models.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ResetCollection(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for fid, f := range s.faces {
		p, ok := s.persons[f.PersonID]
		if ok && p.CollectionID == id {
			s.removeFaceLocked(fid)
		}
	}
	for pid, p := range s.photos {
		if p.CollectionID == id {
			delete(s.photos, pid)
		}
	}
	for pid, p := range s.persons {
		if p.CollectionID == id {
			delete(s.persons, pid)
		}
	}
	return nil
}

// --- Dedup ---

func (s *Store) FindPhotoByHash(_ context.Context, collectionID uuid.UUID, contentHash string) (*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findPhotoByHashLocked(collectionID, contentHash), nil
}

func (s *Store) findPhotoByHashLocked(collectionID uuid.UUID, contentHash string) *models.Photo {
	for _, p := range s.photos {
		if p.CollectionID == collectionID && p.ContentHash == contentHash {
			out := *p
			return &out
		}
	}
	return nil
}

// --- Vector store ---

func (s *Store) InsertFace(_ context.Context, face *models.Face) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := *face
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	s.faces[f.ID] = &f
	s.faceOrder = append(s.faceOrder, f.ID)
	if photo, ok := s.photos[f.PhotoID]; ok {
		photo.HadFaces = true
	}
	face.CreatedAt = f.CreatedAt
	return nil
}

func (s *Store) NearestFaces(_ context.Context, embedding models.Embedding, collectionID uuid.UUID, k int) ([]storage.FaceMatch, error) {
	if s.NearestError != nil {
		return nil, s.NearestError
	}
	if k <= 0 {
		k = 1
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		match storage.FaceMatch
		order int
	}
	var scores []scored
	for order, fid := range s.faceOrder {
		f, ok := s.faces[fid]
		if !ok {
			continue
		}
		person, ok := s.persons[f.PersonID]
		if !ok || person.CollectionID != collectionID {
			continue
		}
		dist, err := embedding.DistanceTo(f.Embedding)
		if err != nil {
			return nil, err
		}
		scores = append(scores, scored{match: storage.FaceMatch{Face: *f, Distance: dist}, order: order})
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].match.Distance != scores[j].match.Distance {
			return scores[i].match.Distance < scores[j].match.Distance
		}
		return scores[i].order < scores[j].order
	})

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]storage.FaceMatch, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, scores[i].match)
	}
	return out, nil
}

func (s *Store) ListFacesByCollection(_ context.Context, collectionID uuid.UUID) ([]models.Face, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Face
	for _, fid := range s.faceOrder {
		f, ok := s.faces[fid]
		if !ok {
			continue
		}
		if p, ok := s.persons[f.PersonID]; ok && p.CollectionID == collectionID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *Store) CountFacesByPerson(_ context.Context, personID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, f := range s.faces {
		if f.PersonID == personID {
			count++
		}
	}
	return count, nil
}

func (s *Store) CountFacesByPhoto(_ context.Context, photoID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, f := range s.faces {
		if f.PhotoID == photoID {
			count++
		}
	}
	return count, nil
}

// --- Ingestion persistence ---

func (s *Store) PersistPhoto(_ context.Context, unit storage.PhotoUnit) error {
	if s.PersistError != nil {
		return s.PersistError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// The uniqueness constraint is checked under the same lock that
	// performs the insert, like the database constraint it stands in for.
	if existing := s.findPhotoByHashLocked(unit.Photo.CollectionID, unit.Photo.ContentHash); existing != nil {
		return storage.ErrDuplicatePhoto
	}

	now := time.Now()
	for _, p := range unit.NewPersons {
		person := p
		if person.CreatedAt.IsZero() {
			person.CreatedAt = now
		}
		s.persons[person.ID] = &person
	}

	photo := unit.Photo
	if photo.CreatedAt.IsZero() {
		photo.CreatedAt = now
	}
	photo.HadFaces = len(unit.Faces) > 0
	s.photos[photo.ID] = &photo

	for _, f := range unit.Faces {
		face := f
		if face.CreatedAt.IsZero() {
			face.CreatedAt = now
		}
		s.faces[face.ID] = &face
		s.faceOrder = append(s.faceOrder, face.ID)
	}
	return nil
}

// --- Lookups ---

func (s *Store) GetPhoto(_ context.Context, id uuid.UUID) (*models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.photos[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (s *Store) ListPhotos(_ context.Context, collectionID uuid.UUID, limit int) ([]models.Photo, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Photo
	for _, p := range s.photos {
		if p.CollectionID == collectionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetPerson(_ context.Context, id uuid.UUID) (*models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (s *Store) ListPersons(_ context.Context, collectionID uuid.UUID) ([]models.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Person
	for _, p := range s.persons {
		if p.CollectionID == collectionID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPersonPhotos(_ context.Context, personID uuid.UUID) ([]models.Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[uuid.UUID]bool)
	var out []models.Photo
	for _, fid := range s.faceOrder {
		f, ok := s.faces[fid]
		if !ok || f.PersonID != personID || seen[f.PhotoID] {
			continue
		}
		if p, ok := s.photos[f.PhotoID]; ok {
			seen[f.PhotoID] = true
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SearchPhotos(_ context.Context, embedding models.Embedding, collectionID uuid.UUID, maxDistance float64, limit int) ([]storage.PhotoMatch, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := make(map[uuid.UUID]float32)
	for _, f := range s.faces {
		photo, ok := s.photos[f.PhotoID]
		if !ok || photo.CollectionID != collectionID {
			continue
		}
		dist, err := embedding.DistanceTo(f.Embedding)
		if err != nil {
			return nil, err
		}
		if float64(dist) >= maxDistance {
			continue
		}
		if cur, ok := best[f.PhotoID]; !ok || dist < cur {
			best[f.PhotoID] = dist
		}
	}

	var out []storage.PhotoMatch
	for photoID, dist := range best {
		out = append(out, storage.PhotoMatch{Photo: *s.photos[photoID], Distance: dist})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Garbage collection ---

func (s *Store) DeletePerson(_ context.Context, personID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.persons[personID]; !ok {
		return storage.ErrNotFound
	}

	photoIDs := make(map[uuid.UUID]bool)
	for fid, f := range s.faces {
		if f.PersonID == personID {
			photoIDs[f.PhotoID] = true
			s.removeFaceLocked(fid)
		}
	}
	delete(s.persons, personID)

	for photoID := range photoIDs {
		s.deletePhotoIfEmptyLocked(photoID)
	}
	return nil
}

func (s *Store) DeletePhoto(_ context.Context, photoID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.photos[photoID]; !ok {
		return storage.ErrNotFound
	}

	personIDs := make(map[uuid.UUID]bool)
	for fid, f := range s.faces {
		if f.PhotoID == photoID {
			personIDs[f.PersonID] = true
			s.removeFaceLocked(fid)
		}
	}
	delete(s.photos, photoID)

	for personID := range personIDs {
		if s.countFacesByPersonLocked(personID) == 0 {
			delete(s.persons, personID)
		}
	}
	return nil
}

func (s *Store) deletePhotoIfEmptyLocked(photoID uuid.UUID) {
	photo, ok := s.photos[photoID]
	if !ok || !photo.HadFaces {
		return
	}
	for _, f := range s.faces {
		if f.PhotoID == photoID {
			return
		}
	}
	delete(s.photos, photoID)
}

func (s *Store) countFacesByPersonLocked(personID uuid.UUID) int {
	count := 0
	for _, f := range s.faces {
		if f.PersonID == personID {
			count++
		}
	}
	return count
}

func (s *Store) removeFaceLocked(faceID uuid.UUID) {
	delete(s.faces, faceID)
	for i, id := range s.faceOrder {
		if id == faceID {
			s.faceOrder = append(s.faceOrder[:i], s.faceOrder[i+1:]...)
			break
		}
	}
}
