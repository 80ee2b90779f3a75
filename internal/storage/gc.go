package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Garbage collection: a person or photo record must never outlive its last
// face reference. Both cascade deletes run inside a single transaction and
// re-verify face counts within that transaction, so a photo or person that
// gains a new face from a concurrent upload between check and delete cannot
// be swept away.
//
// Photos whose extraction yielded zero faces have had_faces = FALSE and are
// never collected: only a photo that once held faces becomes an orphan when
// its last face disappears.

// DeletePerson removes a person, all of its faces, and any photo those faces
// left empty.
func (s *PostgresStore) DeletePerson(ctx context.Context, personID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete person: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT DISTINCT photo_id FROM faces WHERE person_id = $1`, personID)
	if err != nil {
		return fmt.Errorf("collect person photos: %w", err)
	}
	var photoIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan photo id: %w", err)
		}
		photoIDs = append(photoIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate photo ids: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM faces WHERE person_id = $1`, personID); err != nil {
		return fmt.Errorf("delete person faces: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM persons WHERE id = $1`, personID)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, photoID := range photoIDs {
		deleted, err := deletePhotoIfEmpty(ctx, tx, photoID)
		if err != nil {
			return err
		}
		if deleted {
			slog.Debug("gc: removed orphaned photo", "photo_id", photoID, "person_id", personID)
		}
	}

	return tx.Commit(ctx)
}

// DeletePhoto removes a photo and all of its faces, then applies the same
// zero-faces sweep to every person those faces belonged to. The sweep is
// symmetric with DeletePerson so neither delete path can leave an empty
// person or photo behind.
func (s *PostgresStore) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete photo: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx,
		`SELECT DISTINCT person_id FROM faces WHERE photo_id = $1`, photoID)
	if err != nil {
		return fmt.Errorf("collect photo persons: %w", err)
	}
	var personIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan person id: %w", err)
		}
		personIDs = append(personIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate person ids: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM faces WHERE photo_id = $1`, photoID); err != nil {
		return fmt.Errorf("delete photo faces: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM photos WHERE id = $1`, photoID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	for _, personID := range personIDs {
		var remaining int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM faces WHERE person_id = $1`, personID).Scan(&remaining); err != nil {
			return fmt.Errorf("recount person faces: %w", err)
		}
		if remaining > 0 {
			continue
		}
		if _, err := tx.Exec(ctx, `DELETE FROM persons WHERE id = $1`, personID); err != nil {
			return fmt.Errorf("delete empty person: %w", err)
		}
		slog.Debug("gc: removed empty person", "person_id", personID, "photo_id", photoID)
	}

	return tx.Commit(ctx)
}

// deletePhotoIfEmpty removes the photo when it has zero remaining faces and
// is not exempt (had_faces = FALSE means extraction never found a face there,
// which is a legitimate state).
func deletePhotoIfEmpty(ctx context.Context, tx pgx.Tx, photoID uuid.UUID) (bool, error) {
	var remaining int
	var hadFaces bool
	err := tx.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM faces WHERE photo_id = $1), had_faces FROM photos WHERE id = $1`,
		photoID).Scan(&remaining, &hadFaces)
	if err != nil {
		return false, fmt.Errorf("recount photo faces: %w", err)
	}
	if remaining > 0 || !hadFaces {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `DELETE FROM photos WHERE id = $1`, photoID); err != nil {
		return false, fmt.Errorf("delete orphaned photo: %w", err)
	}
	return true, nil
}
