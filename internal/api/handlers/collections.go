package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/queue"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

type CollectionHandler struct {
	store    storage.Store
	producer *queue.Producer
}

func NewCollectionHandler(store storage.Store, producer *queue.Producer) *CollectionHandler {
	return &CollectionHandler{store: store, producer: producer}
}

func (h *CollectionHandler) Create(c *gin.Context) {
	var req dto.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	col, err := h.store.CreateCollection(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, dto.CollectionResponse{
		ID:          col.ID,
		Name:        col.Name,
		Description: col.Description,
		CreatedAt:   col.CreatedAt.Format(time.RFC3339),
	})
}

func (h *CollectionHandler) List(c *gin.Context) {
	cols, err := h.store.ListCollections(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]dto.CollectionResponse, 0, len(cols))
	for _, col := range cols {
		resp = append(resp, dto.CollectionResponse{
			ID:          col.ID,
			Name:        col.Name,
			Description: col.Description,
			CreatedAt:   col.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, dto.CollectionListResponse{Collections: resp, Total: len(resp)})
}

func (h *CollectionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}

	col, err := h.store.GetCollection(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if col == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "collection not found"})
		return
	}

	c.JSON(http.StatusOK, dto.CollectionResponse{
		ID:          col.ID,
		Name:        col.Name,
		Description: col.Description,
		CreatedAt:   col.CreatedAt.Format(time.RFC3339),
	})
}

// Reset drops all persons, photos and faces of a collection while keeping
// the collection itself.
func (h *CollectionHandler) Reset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid collection id"})
		return
	}

	if err := h.store.ResetCollection(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	publishDeletion(c, h.producer, models.DeletionEvent{
		Scope:        models.DeletionScopeCollection,
		CollectionID: id,
		ID:           id,
		DeletedAt:    time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
