package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/dedup"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/queue"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

// maxUploadBytes bounds one multipart photo upload.
const maxUploadBytes = 32 << 20

type PhotoHandler struct {
	store    storage.Store
	minio    *storage.MinIOStore
	producer *queue.Producer
	gate     *dedup.Gate
}

func NewPhotoHandler(store storage.Store, minio *storage.MinIOStore, producer *queue.Producer, gate *dedup.Gate) *PhotoHandler {
	return &PhotoHandler{store: store, minio: minio, producer: producer, gate: gate}
}

// Upload accepts one photo, stages the raw bytes in object storage and
// queues a processing task. Responds 202; the outcome is delivered over the
// WebSocket. Known-duplicate uploads are answered immediately without
// queueing.
func (h *PhotoHandler) Upload(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}

	col, err := h.store.GetCollection(c.Request.Context(), collectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if col == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
		return
	}

	contentHash := dedup.Fingerprint(data)
	existing, err := h.gate.Check(c.Request.Context(), collectionID, contentHash)
	if err != nil {
		slog.Warn("dedup pre-check failed at upload", "error", err)
	}
	if existing != nil {
		c.JSON(http.StatusOK, dto.UploadDuplicateResponse{
			State:           "SKIPPED_DUPLICATE",
			ExistingPhotoID: existing.ID,
		})
		return
	}

	photoID := uuid.New()
	key := fmt.Sprintf("uploads/%s/%s", collectionID, photoID)
	ref, err := h.minio.PutObject(c.Request.Context(), key, data, "application/octet-stream")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	task := models.PhotoTask{
		PhotoID:      photoID,
		CollectionID: collectionID,
		StorageRef:   ref,
		ContentHash:  contentHash,
		SubmittedAt:  time.Now().UTC(),
	}
	if err := h.producer.PublishPhotoTask(c.Request.Context(), collectionID.String(), task); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, dto.UploadAcceptedResponse{PhotoID: photoID, State: "QUEUED"})
}

func (h *PhotoHandler) List(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	photos, err := h.store.ListPhotos(c.Request.Context(), collectionID, limit)
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

func (h *PhotoHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.store.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}
	c.JSON(http.StatusOK, photoResponse(*photo))
}

// Image streams the stored photo bytes.
func (h *PhotoHandler) Image(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.store.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	data, err := h.minio.GetObject(c.Request.Context(), photo.StorageRef)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Delete removes the photo, its faces, and any person left with no faces.
func (h *PhotoHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid photo id"})
		return
	}

	photo, err := h.store.GetPhoto(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if photo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
		return
	}

	if err := h.store.DeletePhoto(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.minio.DeleteObject(c.Request.Context(), photo.StorageRef); err != nil {
		slog.Warn("delete photo object failed", "photo_id", id, "error", err)
	}

	publishDeletion(c, h.producer, models.DeletionEvent{
		Scope:        models.DeletionScopePhoto,
		CollectionID: photo.CollectionID,
		ID:           id,
		DeletedAt:    time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// publishDeletion announces a committed deletion so workers can evict the
// affected faces from their in-memory indexes. Best effort: a publish
// failure is logged, the next index warm reconciles.
func publishDeletion(c *gin.Context, producer *queue.Producer, ev models.DeletionEvent) {
	if producer == nil {
		return
	}
	if err := producer.PublishDeletion(c.Request.Context(), ev.CollectionID.String(), ev); err != nil {
		slog.Warn("publish deletion event", "scope", ev.Scope, "id", ev.ID, "error", err)
	}
}

func photoResponse(p models.Photo) dto.PhotoResponse {
	return dto.PhotoResponse{
		ID:           p.ID,
		CollectionID: p.CollectionID,
		ContentHash:  p.ContentHash,
		StorageRef:   p.StorageRef,
		Width:        p.Width,
		Height:       p.Height,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
	}
}
