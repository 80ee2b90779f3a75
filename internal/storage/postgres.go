package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/abhishekdev057/studio-face-photos/internal/config"
	"github.com/abhishekdev057/studio-face-photos/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Collections ---

func (s *PostgresStore) CreateCollection(ctx context.Context, name, description string) (*models.Collection, error) {
	c := &models.Collection{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO collections (id, name, description) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		c.ID, c.Name, c.Description,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCollection(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	c := &models.Collection{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM collections WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]models.Collection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, created_at, updated_at FROM collections ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

// ResetCollection wipes all faces, photos and persons of a collection in one
// transaction. The collection row itself survives.
func (s *PostgresStore) ResetCollection(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM faces WHERE person_id IN (SELECT id FROM persons WHERE collection_id = $1)`, id); err != nil {
		return fmt.Errorf("reset faces: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM photos WHERE collection_id = $1`, id); err != nil {
		return fmt.Errorf("reset photos: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM persons WHERE collection_id = $1`, id); err != nil {
		return fmt.Errorf("reset persons: %w", err)
	}

	return tx.Commit(ctx)
}

// --- Dedup ---

func (s *PostgresStore) FindPhotoByHash(ctx context.Context, collectionID uuid.UUID, contentHash string) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, collection_id, content_hash, storage_ref, width, height, had_faces, created_at
		 FROM photos WHERE collection_id = $1 AND content_hash = $2`,
		collectionID, contentHash,
	).Scan(&p.ID, &p.CollectionID, &p.ContentHash, &p.StorageRef, &p.Width, &p.Height, &p.HadFaces, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find photo by hash: %w", err)
	}
	return p, nil
}

// --- Vector store ---

func (s *PostgresStore) InsertFace(ctx context.Context, face *models.Face) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert face: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	vec := pgvector.NewVector(face.Embedding)
	err = tx.QueryRow(ctx,
		`INSERT INTO faces (id, photo_id, person_id, embedding) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		face.ID, face.PhotoID, face.PersonID, vec,
	).Scan(&face.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}

	// The photo now has (or had) at least one face, so it is no longer
	// exempt from garbage collection.
	if _, err := tx.Exec(ctx, `UPDATE photos SET had_faces = TRUE WHERE id = $1`, face.PhotoID); err != nil {
		return fmt.Errorf("mark photo had_faces: %w", err)
	}

	return tx.Commit(ctx)
}

// NearestFaces returns up to k faces in the collection ordered by ascending
// Euclidean distance to the query embedding. Ties resolve by insertion order
// (created_at, then id) so results are deterministic.
func (s *PostgresStore) NearestFaces(ctx context.Context, embedding models.Embedding, collectionID uuid.UUID, k int) ([]FaceMatch, error) {
	if k <= 0 {
		k = 1
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.photo_id, f.person_id, f.embedding, f.created_at, f.embedding <-> $1 AS distance
		 FROM faces f
		 JOIN persons p ON p.id = f.person_id
		 WHERE p.collection_id = $2
		 ORDER BY f.embedding <-> $1, f.created_at, f.id
		 LIMIT $3`,
		vec, collectionID, k)
	if err != nil {
		return nil, fmt.Errorf("nearest faces: %w", err)
	}
	defer rows.Close()

	var matches []FaceMatch
	for rows.Next() {
		var m FaceMatch
		var emb pgvector.Vector
		if err := rows.Scan(&m.Face.ID, &m.Face.PhotoID, &m.Face.PersonID, &emb, &m.Face.CreatedAt, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan face match: %w", err)
		}
		m.Face.Embedding = models.Embedding(emb.Slice())
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ListFacesByCollection returns all faces of a collection in insertion order,
// embeddings included. Used to warm the in-memory index at startup.
func (s *PostgresStore) ListFacesByCollection(ctx context.Context, collectionID uuid.UUID) ([]models.Face, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.photo_id, f.person_id, f.embedding, f.created_at
		 FROM faces f
		 JOIN persons p ON p.id = f.person_id
		 WHERE p.collection_id = $1
		 ORDER BY f.created_at, f.id`,
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("list faces: %w", err)
	}
	defer rows.Close()

	var faces []models.Face
	for rows.Next() {
		var f models.Face
		var emb pgvector.Vector
		if err := rows.Scan(&f.ID, &f.PhotoID, &f.PersonID, &emb, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = models.Embedding(emb.Slice())
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

func (s *PostgresStore) CountFacesByPerson(ctx context.Context, personID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE person_id = $1`, personID,
	).Scan(&count)
	return count, err
}

func (s *PostgresStore) CountFacesByPhoto(ctx context.Context, photoID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM faces WHERE photo_id = $1`, photoID,
	).Scan(&count)
	return count, err
}

// --- Ingestion persistence ---

// PersistPhoto writes one photo, the persons the resolver created for it, and
// its face rows in a single transaction. A duplicate content hash rolls the
// whole unit back, including the new persons, and surfaces as
// ErrDuplicatePhoto: the uniqueness constraint, not the gate's pre-check, is
// what breaks the race between concurrent identical uploads.
func (s *PostgresStore) PersistPhoto(ctx context.Context, unit PhotoUnit) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin persist photo: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range unit.NewPersons {
		p := &unit.NewPersons[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO persons (id, collection_id) VALUES ($1, $2) RETURNING created_at`,
			p.ID, p.CollectionID,
		).Scan(&p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert person: %w", err)
		}
	}

	photo := &unit.Photo
	err = tx.QueryRow(ctx,
		`INSERT INTO photos (id, collection_id, content_hash, storage_ref, width, height, had_faces)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		photo.ID, photo.CollectionID, photo.ContentHash, photo.StorageRef,
		photo.Width, photo.Height, len(unit.Faces) > 0,
	).Scan(&photo.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicatePhoto
		}
		return fmt.Errorf("insert photo: %w", err)
	}
	photo.HadFaces = len(unit.Faces) > 0

	for i := range unit.Faces {
		f := &unit.Faces[i]
		vec := pgvector.NewVector(f.Embedding)
		err := tx.QueryRow(ctx,
			`INSERT INTO faces (id, photo_id, person_id, embedding) VALUES ($1, $2, $3, $4) RETURNING created_at`,
			f.ID, f.PhotoID, f.PersonID, vec,
		).Scan(&f.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert face: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- Lookups ---

func (s *PostgresStore) GetPhoto(ctx context.Context, id uuid.UUID) (*models.Photo, error) {
	p := &models.Photo{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, collection_id, content_hash, storage_ref, width, height, had_faces, created_at
		 FROM photos WHERE id = $1`, id,
	).Scan(&p.ID, &p.CollectionID, &p.ContentHash, &p.StorageRef, &p.Width, &p.Height, &p.HadFaces, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get photo: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPhotos(ctx context.Context, collectionID uuid.UUID, limit int) ([]models.Photo, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, collection_id, content_hash, storage_ref, width, height, had_faces, created_at
		 FROM photos WHERE collection_id = $1 ORDER BY created_at DESC LIMIT $2`,
		collectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.CollectionID, &p.ContentHash, &p.StorageRef, &p.Width, &p.Height, &p.HadFaces, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, collection_id, created_at FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.CollectionID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context, collectionID uuid.UUID) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, collection_id, created_at FROM persons WHERE collection_id = $1 ORDER BY created_at`,
		collectionID)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.CollectionID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// ListPersonPhotos returns the distinct photos containing at least one face
// of the given person, newest first.
func (s *PostgresStore) ListPersonPhotos(ctx context.Context, personID uuid.UUID) ([]models.Photo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT p.id, p.collection_id, p.content_hash, p.storage_ref, p.width, p.height, p.had_faces, p.created_at
		 FROM photos p
		 JOIN faces f ON f.photo_id = p.id
		 WHERE f.person_id = $1
		 ORDER BY p.created_at DESC`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list person photos: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		if err := rows.Scan(&p.ID, &p.CollectionID, &p.ContentHash, &p.StorageRef, &p.Width, &p.Height, &p.HadFaces, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person photo: %w", err)
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// SearchPhotos returns distinct photos containing a face within maxDistance
// of the query embedding, ordered by ascending distance. A photo with several
// matching faces appears once, keeping its best match.
func (s *PostgresStore) SearchPhotos(ctx context.Context, embedding models.Embedding, collectionID uuid.UUID, maxDistance float64, limit int) ([]PhotoMatch, error) {
	if limit <= 0 {
		limit = 50
	}
	vec := pgvector.NewVector(embedding)

	// Collapse to the best face per photo before applying the limit, so a
	// photo with several matching faces consumes one result slot.
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.collection_id, p.content_hash, p.storage_ref, p.width, p.height, p.had_faces, p.created_at,
		        d.distance
		 FROM (
		     SELECT f.photo_id, MIN(f.embedding <-> $1) AS distance
		     FROM faces f
		     JOIN photos fp ON fp.id = f.photo_id
		     WHERE fp.collection_id = $2
		     GROUP BY f.photo_id
		     HAVING MIN(f.embedding <-> $1) < $3
		     ORDER BY distance ASC
		     LIMIT $4
		 ) d
		 JOIN photos p ON p.id = d.photo_id
		 ORDER BY d.distance ASC`,
		vec, collectionID, maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("search photos: %w", err)
	}
	defer rows.Close()

	var matches []PhotoMatch
	for rows.Next() {
		var m PhotoMatch
		if err := rows.Scan(&m.Photo.ID, &m.Photo.CollectionID, &m.Photo.ContentHash, &m.Photo.StorageRef,
			&m.Photo.Width, &m.Photo.Height, &m.Photo.HadFaces, &m.Photo.CreatedAt, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan photo match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}
