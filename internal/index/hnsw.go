// Package index provides an in-memory approximate nearest-neighbor index
// over face embeddings, backed by an HNSW graph.
//
// The resolver's matching contract is defined against exact nearest-neighbor
// semantics; an HNSW graph trades a small amount of recall for query speed,
// so at scale it can occasionally return a different neighbor than an exact
// scan would and thereby change a matching decision. Deployments that cannot
// accept that use the pgvector backend.
//
// The index learns faces from the pipeline that persists them and evicts
// faces from deletion events, so it assumes a single worker process per
// deployment.
package index

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"
	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
)

const maxNeighbors = 16

type entry struct {
	collectionID uuid.UUID
	face         models.Face
}

// FaceIndex maintains one HNSW graph per collection.
type FaceIndex struct {
	mu     sync.RWMutex
	graphs map[uuid.UUID]*hnsw.Graph[int64]
	faces  map[int64]entry
	nextID int64
}

func NewFaceIndex() *FaceIndex {
	return &FaceIndex{
		graphs: make(map[uuid.UUID]*hnsw.Graph[int64]),
		faces:  make(map[int64]entry),
	}
}

// Warm loads all existing faces of the store into the index, one collection
// at a time.
func (x *FaceIndex) Warm(ctx context.Context, store storage.Store) error {
	collections, err := store.ListCollections(ctx)
	if err != nil {
		return err
	}
	for _, col := range collections {
		faces, err := store.ListFacesByCollection(ctx, col.ID)
		if err != nil {
			return err
		}
		for _, f := range faces {
			x.Add(col.ID, f)
		}
	}
	return nil
}

// Add inserts one face into the collection's graph.
func (x *FaceIndex) Add(collectionID uuid.UUID, face models.Face) {
	x.mu.Lock()
	defer x.mu.Unlock()

	g, ok := x.graphs[collectionID]
	if !ok {
		g = hnsw.NewGraph[int64]()
		g.M = maxNeighbors
		g.Ml = 1.0 / float64(maxNeighbors)
		g.Distance = hnsw.EuclideanDistance
		x.graphs[collectionID] = g
	}

	id := x.nextID
	x.nextID++
	x.faces[id] = entry{collectionID: collectionID, face: face}
	g.Add(hnsw.MakeNode(id, face.Embedding))
}

// NearestFaces returns up to k approximate nearest neighbors ordered by
// ascending Euclidean distance. Satisfies the resolver's searcher contract.
func (x *FaceIndex) NearestFaces(_ context.Context, embedding models.Embedding, collectionID uuid.UUID, k int) ([]storage.FaceMatch, error) {
	if k <= 0 {
		k = 1
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	g, ok := x.graphs[collectionID]
	if !ok {
		return nil, nil
	}

	neighbors := g.Search(embedding, k)
	matches := make([]storage.FaceMatch, 0, len(neighbors))
	for _, n := range neighbors {
		e, ok := x.faces[n.Key]
		if !ok {
			// Evicted face; its graph node lingers until the next Warm.
			continue
		}
		dist, err := embedding.DistanceTo(e.face.Embedding)
		if err != nil {
			return nil, err
		}
		matches = append(matches, storage.FaceMatch{Face: e.face, Distance: dist})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches, nil
}

// Apply evicts the faces covered by one deletion event.
func (x *FaceIndex) Apply(ev models.DeletionEvent) {
	switch ev.Scope {
	case models.DeletionScopePerson:
		x.Remove(ev.ID)
	case models.DeletionScopePhoto:
		x.RemovePhoto(ev.ID)
	case models.DeletionScopeCollection:
		x.DropCollection(ev.CollectionID)
	}
}

// Remove evicts all faces of a person. The underlying graph nodes remain
// until the next Warm; stale nodes are filtered out of search results by the
// metadata lookup. Photos orphaned by the same cascade carry only this
// person's faces, so no separate sweep is needed.
func (x *FaceIndex) Remove(personID uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.faces {
		if e.face.PersonID == personID {
			delete(x.faces, id)
		}
	}
}

// RemovePhoto evicts all faces detected in a photo.
func (x *FaceIndex) RemovePhoto(photoID uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for id, e := range x.faces {
		if e.face.PhotoID == photoID {
			delete(x.faces, id)
		}
	}
}

// DropCollection discards a collection's graph and all of its faces.
func (x *FaceIndex) DropCollection(collectionID uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.graphs, collectionID)
	for id, e := range x.faces {
		if e.collectionID == collectionID {
			delete(x.faces, id)
		}
	}
}
