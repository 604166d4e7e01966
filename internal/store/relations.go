package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"arstudio/internal/core"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteRelations maintains the activity-document association in the
// explicit activity_documents join table. The join table is the single
// source of truth on this backend: one atomic insert per link, nothing to
// drift out of sync with a second write.
//
// Association errors are isolated from the document writes they accompany:
// a successful upload is never failed because linking metadata is
// inconsistent, so most operations log and return nil instead of
// propagating.
type SQLiteRelations struct {
	db        *sql.DB
	documents core.Collection
	logger    core.Logger
	clock     core.Clock
}

// NewSQLiteRelations creates a relations manager over the join table.
// documents is the documents collection handle, used by ForceLink for the
// best-effort denormalized array update.
func NewSQLiteRelations(db *sql.DB, documents core.Collection, logger core.Logger, clock core.Clock) *SQLiteRelations {
	return &SQLiteRelations{db: db, documents: documents, logger: logger, clock: clock}
}

// Link inserts the association after verifying both endpoints exist.
// Re-linking an existing pair is a no-op. A missing endpoint is logged and
// swallowed.
func (r *SQLiteRelations) Link(ctx context.Context, documentID, activityID string) error {
	if !r.rowExists(ctx, "activities", activityID) {
		r.logger.Error("link skipped: activity not found", "activityId", activityID, "documentId", documentID)
		return nil
	}
	if !r.rowExists(ctx, "documents", documentID) {
		r.logger.Error("link skipped: document not found", "activityId", activityID, "documentId", documentID)
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO activity_documents (activity_id, document_id, created_at)
		VALUES (?, ?, ?)`,
		activityID, documentID, r.clock.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("linking document %s to activity %s: %w", documentID, activityID, err)
	}
	return nil
}

// ForceLink upserts the association without existence verification and
// best-effort mirrors it into the document's own activityIds array. Used
// when the caller has already established correctness by other means.
// The join table enforces foreign keys, so an upsert against a missing
// endpoint row is logged and skipped; the denormalized update still runs.
func (r *SQLiteRelations) ForceLink(ctx context.Context, documentID, activityID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_documents (activity_id, document_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(activity_id, document_id) DO UPDATE SET created_at = excluded.created_at`,
		activityID, documentID, r.clock.Now().UnixMilli())
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			r.logger.Error("force-link join row skipped: endpoint missing", "activityId", activityID, "documentId", documentID)
		} else {
			return fmt.Errorf("force-linking document %s to activity %s: %w", documentID, activityID, err)
		}
	}

	if _, err := r.documents.UpdateOne(ctx,
		core.ByID(documentID),
		core.Update{AddToSet: map[string]any{"activityIds": activityID}},
	); err != nil {
		r.logger.Error("denormalized link update failed", "documentId", documentID, "activityId", activityID, "error", err)
	}
	return nil
}

// Unlink removes the association. Unlinking a never-linked pair is a
// no-op, not an error.
func (r *SQLiteRelations) Unlink(ctx context.Context, documentID, activityID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM activity_documents
		WHERE activity_id = ? AND document_id = ?`,
		activityID, documentID)
	if err != nil {
		return fmt.Errorf("unlinking document %s from activity %s: %w", documentID, activityID, err)
	}
	return nil
}

// DocumentsByActivity returns document identifiers linked to the activity,
// most recently linked first. If the ordered query fails against a drifted
// schema, it retries unordered, then degrades to an empty set.
func (r *SQLiteRelations) DocumentsByActivity(ctx context.Context, activityID string) ([]string, error) {
	return r.traverse(ctx, "document_id", "activity_id", activityID)
}

// ActivitiesByDocument is the mirror traversal with the same degradation
// policy.
func (r *SQLiteRelations) ActivitiesByDocument(ctx context.Context, documentID string) ([]string, error) {
	return r.traverse(ctx, "activity_id", "document_id", documentID)
}

func (r *SQLiteRelations) traverse(ctx context.Context, selectCol, whereCol, id string) ([]string, error) {
	ids, err := r.selectIDs(ctx, fmt.Sprintf(`
		SELECT %s FROM activity_documents
		WHERE %s = ? ORDER BY created_at DESC`, selectCol, whereCol), id)
	if err == nil {
		return ids, nil
	}
	r.logger.Error("ordered relation query failed, retrying unordered", "column", whereCol, "id", id, "error", err)

	// The base schema guarantees created_at these days, but databases
	// written by older builds can still lack it.
	ids, err = r.selectIDs(ctx, fmt.Sprintf(`
		SELECT %s FROM activity_documents
		WHERE %s = ?`, selectCol, whereCol), id)
	if err == nil {
		return ids, nil
	}
	r.logger.Error("relation query failed, returning empty set", "column", whereCol, "id", id, "error", err)
	return []string{}, nil
}

func (r *SQLiteRelations) selectIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		ids = append(ids, v)
	}
	return ids, rows.Err()
}

func (r *SQLiteRelations) rowExists(ctx context.Context, table, id string) bool {
	var one int
	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", table), id).Scan(&one)
	return err == nil
}

// Compile-time interface check
var _ core.Relations = (*SQLiteRelations)(nil)
