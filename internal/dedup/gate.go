// Package dedup decides whether an uploaded photo's content has been seen
// before in a collection.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/abhishekdev057/studio-face-photos/internal/config"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
	"github.com/abhishekdev057/studio-face-photos/internal/storage"
)

// NewCache builds the optional Redis fingerprint cache client. Returns nil
// when no address is configured.
func NewCache(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

const cacheTTL = 24 * time.Hour

// Fingerprint returns the SHA-256 hex digest of the raw photo bytes. The
// digest is computed over the bytes as uploaded, before any resize.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Gate answers "has this content hash been ingested into this collection".
// The check is read-only and advisory: the store's uniqueness constraint on
// (collection, hash) is the actual race-breaker, the gate just lets duplicate
// uploads skip extraction. An optional Redis cache maps recently seen hashes
// to their photo id.
type Gate struct {
	store  storage.Store
	cache  *redis.Client
	logger *slog.Logger
}

func NewGate(store storage.Store, cache *redis.Client, logger *slog.Logger) *Gate {
	return &Gate{store: store, cache: cache, logger: logger}
}

// Check returns the already-stored photo carrying this content hash, or nil
// when the hash is new to the collection. Cache failures never block
// ingestion; the store remains the source of truth.
func (g *Gate) Check(ctx context.Context, collectionID uuid.UUID, contentHash string) (*models.Photo, error) {
	if g.cache != nil {
		val, err := g.cache.Get(ctx, cacheKey(collectionID, contentHash)).Result()
		if err != nil && err != redis.Nil {
			g.logger.Warn("dedup cache lookup failed", "error", err)
		} else if err == nil {
			if photoID, perr := uuid.Parse(val); perr == nil {
				return &models.Photo{
					ID:           photoID,
					CollectionID: collectionID,
					ContentHash:  contentHash,
				}, nil
			}
		}
	}

	existing, err := g.store.FindPhotoByHash(ctx, collectionID, contentHash)
	if err != nil {
		return nil, fmt.Errorf("find photo by hash: %w", err)
	}
	if existing != nil {
		g.remember(ctx, collectionID, contentHash, existing.ID)
	}
	return existing, nil
}

// MarkIngested records the hash after a successful persist so subsequent
// duplicates hit the cache.
func (g *Gate) MarkIngested(ctx context.Context, collectionID uuid.UUID, contentHash string, photoID uuid.UUID) {
	g.remember(ctx, collectionID, contentHash, photoID)
}

func (g *Gate) remember(ctx context.Context, collectionID uuid.UUID, contentHash string, photoID uuid.UUID) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKey(collectionID, contentHash), photoID.String(), cacheTTL).Err(); err != nil {
		g.logger.Warn("dedup cache write failed", "error", err)
	}
}

func cacheKey(collectionID uuid.UUID, contentHash string) string {
	return "sfp:dedup:" + collectionID.String() + ":" + contentHash
}
