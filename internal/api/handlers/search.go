package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/abhishekdev057/studio-face-photos/internal/storage"
	"github.com/abhishekdev057/studio-face-photos/internal/vision"
	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

type SearchHandler struct {
	store     storage.Store
	extractor vision.Extractor
	threshold float64
}

func NewSearchHandler(store storage.Store, extractor vision.Extractor, threshold float64) *SearchHandler {
	return &SearchHandler{store: store, extractor: extractor, threshold: threshold}
}

// ByFace finds every photo of the collection containing a face within the
// match threshold of the face on the uploaded selfie. Each photo appears
// once, with its best-matching distance.
func (h *SearchHandler) ByFace(c *gin.Context) {
	collectionID, err := uuid.Parse(c.Query("collection_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection_id required"})
		return
	}

	file, _, err := c.Request.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	embeddings, err := h.extractor.Extract(c.Request.Context(), data)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "face extraction failed: " + err.Error()})
		return
	}
	if len(embeddings) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no face found in query photo"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	matches, err := h.store.SearchPhotos(c.Request.Context(), embeddings[0], collectionID, h.threshold, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	results := make([]dto.SearchResultItem, 0, len(matches))
	for _, m := range matches {
		results = append(results, dto.SearchResultItem{
			Photo:    photoResponse(m.Photo),
			Distance: m.Distance,
		})
	}
	c.JSON(http.StatusOK, dto.SearchResponse{Results: results, Total: len(results)})
}
