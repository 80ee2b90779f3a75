package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekdev057/studio-face-photos/internal/storage/memstore"
	"github.com/abhishekdev057/studio-face-photos/pkg/dto"
)

func collectionRouter(store *memstore.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCollectionHandler(store, nil)
	r := gin.New()
	r.POST("/collections", h.Create)
	r.GET("/collections", h.List)
	r.GET("/collections/:id", h.Get)
	r.POST("/collections/:id/reset", h.Reset)
	return r
}

func TestCreateAndGetCollection(t *testing.T) {
	r := collectionRouter(memstore.New())

	body, _ := json.Marshal(dto.CreateCollectionRequest{Name: "wedding", Description: "June 2026"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var created dto.CollectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "wedding", created.Name)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/collections/"+created.ID.String(), nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got dto.CollectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateCollectionRequiresName(t *testing.T) {
	r := collectionRouter(memstore.New())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetCollectionNotFound(t *testing.T) {
	r := collectionRouter(memstore.New())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/collections/6dfacfd4-3b17-4c39-a5b7-918e36d0a3fa", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListCollections(t *testing.T) {
	store := memstore.New()
	r := collectionRouter(store)

	for _, name := range []string{"a", "b"} {
		body, _ := json.Marshal(dto.CreateCollectionRequest{Name: name})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/collections", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/collections", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.CollectionListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}
