package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/queue"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

type PersonHandler struct {
	store    storage.Store
	minio    *storage.MinIOStore
	producer *queue.Producer
}

func NewPersonHandler(store storage.Store, minio *storage.MinIOStore, producer *queue.Producer) *PersonHandler {
	return &PersonHandler{store: store, minio: minio, producer: producer}
}

func (h *PersonHandler) List(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Query("collection_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection_id required"})
		return
	}

	persons, err := h.store.ListPersons(c.Request.Context(), collectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for _, p := range persons {
		count, err := h.store.CountFacesByPerson(c.Request.Context(), p.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp = append(resp, dto.PersonResponse{
			ID:           p.ID,
			CollectionID: p.CollectionID,
			FaceCount:    count,
			CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.store.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	count, err := h.store.CountFacesByPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.PersonResponse{
		ID:           person.ID,
		CollectionID: person.CollectionID,
		FaceCount:    count,
		CreatedAt:    person.CreatedAt.Format(time.RFC3339),
	})
}

// Photos lists every photo containing at least one face of this person.
func (h *PersonHandler) Photos(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.store.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	photos, err := h.store.ListPersonPhotos(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.PhotoResponse, 0, len(photos))
	for _, p := range photos {
		resp = append(resp, photoResponse(p))
	}
	c.JSON(http.StatusOK, dto.PhotoListResponse{Photos: resp, Total: len(resp)})
}

// Delete removes the person, all their faces, and any photo whose faces all
// belonged to them. Photos that never had faces are untouched.
func (h *PersonHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person id"})
		return
	}

	person, err := h.store.GetPerson(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	// Snapshot the person's photos so their stored bytes can be removed for
	// any photo the cascade deletes.
	photos, err := h.store.ListPersonPhotos(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.DeletePerson(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	publishDeletion(c, h.producer, models.DeletionEvent{
		Scope:        models.DeletionScopePerson,
		CollectionID: person.CollectionID,
		ID:           id,
		DeletedAt:    time.Now().UTC(),
	})

	var orphanedRefs []string
	for _, p := range photos {
		remaining, err := h.store.GetPhoto(c.Request.Context(), p.ID)
		if err != nil {
			slog.Warn("check photo after person delete", "photo_id", p.ID, "error", err)
			continue
		}
		if remaining == nil {
			orphanedRefs = append(orphanedRefs, p.StorageRef)
		}
	}
	if len(orphanedRefs) > 0 {
		if err := h.minio.DeleteObjects(c.Request.Context(), orphanedRefs); err != nil {
			slog.Warn("delete photo objects failed", "person_id", id, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted", "photos_removed": len(orphanedRefs)})
}
