package memstore

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
)

// emb builds a 4-dim embedding at distance |x| from the origin along the
// first axis, so distances between test embeddings are simple differences.
func emb(x float32) models.Embedding {
	return models.Embedding{x, 0, 0, 0}
}

func seedCollection(t *testing.T, s *Store) uuid.UUID {
	t.Helper()
	col, err := s.CreateCollection(context.Background(), "wedding", "")
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	return col.ID
}

// seedPhoto persists one photo with one new person and faces at the given
// positions.
func seedPhoto(t *testing.T, s *Store, collectionID uuid.UUID, hash string, positions ...float32) (photoID, personID uuid.UUID) {
	t.Helper()
	person := models.Person{ID: uuid.New(), CollectionID: collectionID}
	photo := models.Photo{ID: uuid.New(), CollectionID: collectionID, ContentHash: hash, StorageRef: "uploads/" + hash}
	var faces []models.Face
	for _, pos := range positions {
		faces = append(faces, models.Face{
			ID:        uuid.New(),
			PhotoID:   photo.ID,
			PersonID:  person.ID,
			Embedding: emb(pos),
		})
	}
	unit := storage.PhotoUnit{Photo: photo, Faces: faces}
	if len(faces) > 0 {
		unit.NewPersons = []models.Person{person}
	}
	if err := s.PersistPhoto(context.Background(), unit); err != nil {
		t.Fatalf("persist photo: %v", err)
	}
	return photo.ID, person.ID
}

func TestNearestFaces_OrderAndTies(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	personID := uuid.New()
	photoID := uuid.New()
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{
		Photo:      models.Photo{ID: photoID, CollectionID: colID, ContentHash: "h1", StorageRef: "r"},
		NewPersons: []models.Person{{ID: personID, CollectionID: colID}},
		Faces: []models.Face{
			{ID: uuid.New(), PhotoID: photoID, PersonID: personID, Embedding: emb(3)},
			{ID: uuid.New(), PhotoID: photoID, PersonID: personID, Embedding: emb(1)},
			{ID: uuid.New(), PhotoID: photoID, PersonID: personID, Embedding: emb(2)},
		},
	}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	matches, err := s.NearestFaces(ctx, emb(0), colID, 3)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	for i, want := range []float32{1, 2, 3} {
		if matches[i].Distance != want {
			t.Errorf("match %d: expected distance %f, got %f", i, want, matches[i].Distance)
		}
	}
}

func TestNearestFaces_TieBreakByInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	personID := uuid.New()
	photoID := uuid.New()
	first := models.Face{ID: uuid.New(), PhotoID: photoID, PersonID: personID, Embedding: emb(1)}
	second := models.Face{ID: uuid.New(), PhotoID: photoID, PersonID: personID, Embedding: emb(1)}
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{
		Photo:      models.Photo{ID: photoID, CollectionID: colID, ContentHash: "h1", StorageRef: "r"},
		NewPersons: []models.Person{{ID: personID, CollectionID: colID}},
		Faces:      []models.Face{first, second},
	}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	matches, err := s.NearestFaces(ctx, emb(0), colID, 1)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Face.ID != first.ID {
		t.Errorf("expected earliest-inserted face to win the tie")
	}
}

func TestNearestFaces_ScopedToCollection(t *testing.T) {
	s := New()
	colA := seedCollection(t, s)
	colB := seedCollection(t, s)
	seedPhoto(t, s, colA, "ha", 1)
	seedPhoto(t, s, colB, "hb", 0.1)

	matches, err := s.NearestFaces(context.Background(), emb(0), colA, 5)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected only the collection-scoped face, got %d", len(matches))
	}
	if matches[0].Distance != 1 {
		t.Errorf("expected distance 1, got %f", matches[0].Distance)
	}
}

func TestPersistPhoto_DuplicateHash(t *testing.T) {
	s := New()
	colID := seedCollection(t, s)
	seedPhoto(t, s, colID, "same-hash", 1)

	err := s.PersistPhoto(context.Background(), storage.PhotoUnit{
		Photo: models.Photo{ID: uuid.New(), CollectionID: colID, ContentHash: "same-hash", StorageRef: "r2"},
	})
	if err != storage.ErrDuplicatePhoto {
		t.Fatalf("expected ErrDuplicatePhoto, got %v", err)
	}
}

func TestPersistPhoto_SameHashDifferentCollections(t *testing.T) {
	s := New()
	colA := seedCollection(t, s)
	colB := seedCollection(t, s)
	seedPhoto(t, s, colA, "h", 1)
	seedPhoto(t, s, colB, "h", 1) // must not conflict across collections
}

func TestDeletePerson_CascadesToOrphanedPhotos(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)
	photoID, personID := seedPhoto(t, s, colID, "h1", 1, 2)

	if err := s.DeletePerson(ctx, personID); err != nil {
		t.Fatalf("delete person: %v", err)
	}

	if p, _ := s.GetPerson(ctx, personID); p != nil {
		t.Error("person should be gone")
	}
	if n, _ := s.CountFacesByPerson(ctx, personID); n != 0 {
		t.Errorf("expected 0 faces for deleted person, got %d", n)
	}
	if p, _ := s.GetPhoto(ctx, photoID); p != nil {
		t.Error("photo with no remaining faces should be garbage-collected")
	}
}

func TestDeletePerson_SharedPhotoSurvives(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	// One photo with faces of two different persons.
	personA := models.Person{ID: uuid.New(), CollectionID: colID}
	personB := models.Person{ID: uuid.New(), CollectionID: colID}
	photo := models.Photo{ID: uuid.New(), CollectionID: colID, ContentHash: "h", StorageRef: "r"}
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{
		Photo:      photo,
		NewPersons: []models.Person{personA, personB},
		Faces: []models.Face{
			{ID: uuid.New(), PhotoID: photo.ID, PersonID: personA.ID, Embedding: emb(1)},
			{ID: uuid.New(), PhotoID: photo.ID, PersonID: personB.ID, Embedding: emb(5)},
		},
	}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	if err := s.DeletePerson(ctx, personA.ID); err != nil {
		t.Fatalf("delete person: %v", err)
	}

	if p, _ := s.GetPhoto(ctx, photo.ID); p == nil {
		t.Error("photo still referenced by another person's face must survive")
	}
	if n, _ := s.CountFacesByPhoto(ctx, photo.ID); n != 1 {
		t.Errorf("expected 1 remaining face, got %d", n)
	}
}

func TestDeletePerson_NotFound(t *testing.T) {
	s := New()
	if err := s.DeletePerson(context.Background(), uuid.New()); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFacelessPhotoExemptFromGC(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	// A photo whose extraction found no faces at all.
	faceless := models.Photo{ID: uuid.New(), CollectionID: colID, ContentHash: "faceless", StorageRef: "r"}
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{Photo: faceless}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// A person whose deletion triggers the GC sweep elsewhere.
	_, personID := seedPhoto(t, s, colID, "other", 1)
	if err := s.DeletePerson(ctx, personID); err != nil {
		t.Fatalf("delete person: %v", err)
	}

	if p, _ := s.GetPhoto(ctx, faceless.ID); p == nil {
		t.Error("photo that never had faces must never be garbage-collected")
	}
}

func TestDeletePhoto_SweepsEmptyPersons(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)
	photoID, personID := seedPhoto(t, s, colID, "h", 1)

	if err := s.DeletePhoto(ctx, photoID); err != nil {
		t.Fatalf("delete photo: %v", err)
	}

	if p, _ := s.GetPhoto(ctx, photoID); p != nil {
		t.Error("photo should be gone")
	}
	if p, _ := s.GetPerson(ctx, personID); p != nil {
		t.Error("person left with zero faces after photo deletion should be swept")
	}
}

func TestDeletePhoto_PersonWithOtherFacesSurvives(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	person := models.Person{ID: uuid.New(), CollectionID: colID}
	photoA := models.Photo{ID: uuid.New(), CollectionID: colID, ContentHash: "ha", StorageRef: "r"}
	photoB := models.Photo{ID: uuid.New(), CollectionID: colID, ContentHash: "hb", StorageRef: "r"}
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{
		Photo:      photoA,
		NewPersons: []models.Person{person},
		Faces:      []models.Face{{ID: uuid.New(), PhotoID: photoA.ID, PersonID: person.ID, Embedding: emb(1)}},
	}); err != nil {
		t.Fatalf("persist A: %v", err)
	}
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{
		Photo: photoB,
		Faces: []models.Face{{ID: uuid.New(), PhotoID: photoB.ID, PersonID: person.ID, Embedding: emb(1.2)}},
	}); err != nil {
		t.Fatalf("persist B: %v", err)
	}

	if err := s.DeletePhoto(ctx, photoA.ID); err != nil {
		t.Fatalf("delete photo: %v", err)
	}

	if p, _ := s.GetPerson(ctx, person.ID); p == nil {
		t.Error("person still holding a face in another photo must survive")
	}
}

func TestNoDanglingReferences(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)
	seedPhoto(t, s, colID, "h1", 1, 2)
	photoB, _ := seedPhoto(t, s, colID, "h2", 5)

	if err := s.DeletePhoto(ctx, photoB); err != nil {
		t.Fatalf("delete photo: %v", err)
	}

	// Every remaining face must reference an existing photo and person.
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.faces {
		if _, ok := s.photos[f.PhotoID]; !ok {
			t.Errorf("face %s references missing photo %s", f.ID, f.PhotoID)
		}
		if _, ok := s.persons[f.PersonID]; !ok {
			t.Errorf("face %s references missing person %s", f.ID, f.PersonID)
		}
	}
}

func TestSearchPhotos_DedupKeepsBestMatch(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	// One photo holding two faces at distances 0.2 and 0.4 from the query.
	person := models.Person{ID: uuid.New(), CollectionID: colID}
	photo := models.Photo{ID: uuid.New(), CollectionID: colID, ContentHash: "h", StorageRef: "r"}
	if err := s.PersistPhoto(ctx, storage.PhotoUnit{
		Photo:      photo,
		NewPersons: []models.Person{person},
		Faces: []models.Face{
			{ID: uuid.New(), PhotoID: photo.ID, PersonID: person.ID, Embedding: emb(0.4)},
			{ID: uuid.New(), PhotoID: photo.ID, PersonID: person.ID, Embedding: emb(0.2)},
		},
	}); err != nil {
		t.Fatalf("persist: %v", err)
	}

	matches, err := s.SearchPhotos(ctx, emb(0), colID, 0.5, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one deduplicated photo, got %d", len(matches))
	}
	if matches[0].Distance > 0.21 || matches[0].Distance < 0.19 {
		t.Errorf("expected best-face distance ~0.2, got %f", matches[0].Distance)
	}
}

func TestSearchPhotos_MultiFacePhotoUsesOneLimitSlot(t *testing.T) {
	s := New()
	ctx := context.Background()
	colID := seedCollection(t, s)

	// A photo with several matching faces must not crowd other photos out
	// of a limited result set.
	closeID, _ := seedPhoto(t, s, colID, "h1", 0.1, 0.15, 0.2)
	farID, _ := seedPhoto(t, s, colID, "h2", 0.3)

	matches, err := s.SearchPhotos(ctx, emb(0), colID, 0.5, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected two distinct photos within the limit, got %d", len(matches))
	}
	if matches[0].Photo.ID != closeID || matches[1].Photo.ID != farID {
		t.Errorf("expected photos ordered by best face [%s %s], got [%s %s]",
			closeID, farID, matches[0].Photo.ID, matches[1].Photo.ID)
	}
}

func TestSearchPhotos_ThresholdExcludes(t *testing.T) {
	s := New()
	colID := seedCollection(t, s)
	seedPhoto(t, s, colID, "h", 0.8)

	matches, err := s.SearchPhotos(context.Background(), emb(0), colID, 0.5, 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches beyond the distance cutoff, got %d", len(matches))
	}
}
