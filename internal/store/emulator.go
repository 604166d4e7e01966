package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"arstudio/internal/core"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// SQLiteCollection emulates document-database semantics over a single
// opaque-document table: one row per document, the logical document
// serialized into the data column, store-maintained timestamps alongside.
//
// The supported query/update subset (equality filters, id batches, Set,
// AddToSet, Pull) behaves identically to the document database; anything
// beyond it is only available in managed mode.
type SQLiteCollection struct {
	db     *sql.DB
	table  string
	logger core.Logger
	clock  core.Clock
	idgen  core.IDGenerator
}

// NewSQLiteCollection binds a collection emulator to one table, creating
// the table and its indexes if absent. Structural failures are logged and
// the collection is still returned; operations against missing structures
// fail individually at call time.
func NewSQLiteCollection(db *sql.DB, table string, logger core.Logger, clock core.Clock, idgen core.IDGenerator) *SQLiteCollection {
	c := &SQLiteCollection{db: db, table: table, logger: logger, clock: clock, idgen: idgen}

	if err := ensureCollectionTable(db, table); err != nil {
		logger.Error("table creation failed", "table", table, "error", err)
		return c
	}
	c.ensureIndexes()
	return c
}

// ensureIndexes creates secondary indexes for common query patterns. They
// are purely for performance and carry no constraints.
func (c *SQLiteCollection) ensureIndexes() {
	stmts := []string{
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_updated ON %s(updated_at)`, c.table, c.table),
	}
	if c.table == "scenes" {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_scenes_activity ON scenes(json_extract(data, '$.activity_id'))`,
			`CREATE INDEX IF NOT EXISTS idx_scenes_org ON scenes(json_extract(data, '$.orgId'))`,
		)
	}
	if c.table == "scenes_configuration" {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS idx_scene_config ON scenes_configuration(json_extract(data, '$.scene_id'))`,
		)
	}
	for _, stmt := range stmts {
		if _, err := c.db.Exec(stmt); err != nil {
			c.logger.Error("index creation failed", "table", c.table, "error", err)
		}
	}
}

// FindOne returns the first document matching the filter, or nil when none
// match. Query failures are logged and degrade to not-found so read paths
// stay live.
func (c *SQLiteCollection) FindOne(ctx context.Context, filter core.Filter) (core.Document, error) {
	doc, _, err := c.resolve(ctx, filter)
	return doc, err
}

// resolve looks up a single document and its physical updated_at, which
// UpdateOne uses as its concurrency token.
func (c *SQLiteCollection) resolve(ctx context.Context, filter core.Filter) (core.Document, int64, error) {
	var row *sql.Row

	if filter.ID != "" && len(filter.Eq) == 0 && len(filter.IDIn) == 0 {
		// Fast path: physical primary key lookup.
		row = c.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT data, updated_at FROM %s WHERE id = ?", c.table), filter.ID)
	} else {
		where, err := translateFilter(filter)
		if err != nil {
			c.logger.Error("query translation failed", "table", c.table, "error", err)
			return nil, 0, nil
		}
		row = c.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT data, updated_at FROM %s%s LIMIT 1", c.table, where.sql()), where.args...)
	}

	var data string
	var updatedAt int64
	if err := row.Scan(&data, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		c.logger.Error("findOne failed", "table", c.table, "error", err)
		return nil, 0, nil
	}

	var doc core.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		c.logger.Error("stored document is not valid JSON", "table", c.table, "error", err)
		return nil, 0, nil
	}
	return doc, updatedAt, nil
}

// Find returns a lazy cursor over every document matching the filter.
// Execution errors are logged and degrade to an empty result.
func (c *SQLiteCollection) Find(ctx context.Context, filter core.Filter) (core.Cursor, error) {
	return &queryCursor{run: func(ctx context.Context, limit int) ([]core.Document, error) {
		where, err := translateFilter(filter)
		if err != nil {
			c.logger.Error("query translation failed", "table", c.table, "error", err)
			return nil, nil
		}

		query := fmt.Sprintf("SELECT data FROM %s%s", c.table, where.sql())
		if limit > 0 {
			query += fmt.Sprintf(" LIMIT %d", limit)
		}

		rows, err := c.db.QueryContext(ctx, query, where.args...)
		if err != nil {
			c.logger.Error("find failed", "table", c.table, "error", err)
			return nil, nil
		}
		defer rows.Close()

		var docs []core.Document
		for rows.Next() {
			var data string
			if err := rows.Scan(&data); err != nil {
				c.logger.Error("find scan failed", "table", c.table, "error", err)
				return docs, nil
			}
			var doc core.Document
			if err := json.Unmarshal([]byte(data), &doc); err != nil {
				c.logger.Error("stored document is not valid JSON", "table", c.table, "error", err)
				continue
			}
			docs = append(docs, doc)
		}
		return docs, rows.Err()
	}}, nil
}

// InsertOne stores a new document, generating an identifier when the
// document has none, and returns that identifier. The caller's document is
// never mutated. A colliding identifier is a hard failure, not an upsert.
func (c *SQLiteCollection) InsertOne(ctx context.Context, doc core.Document) (string, error) {
	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		id = c.idgen.New()
		stored["id"] = id
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("serializing document for %s: %w", c.table, err)
	}

	now := c.clock.Now().UnixMilli()
	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)", c.table),
		id, string(data), now, now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return "", fmt.Errorf("inserting into %s: %w", c.table, core.ErrDuplicateID)
		}
		return "", fmt.Errorf("inserting into %s: %w", c.table, err)
	}

	return id, nil
}

// UpdateOne resolves the filter to one document, applies the update
// operators in fixed order (Set, AddToSet, Pull), and rewrites the data
// blob iff at least one operator produced a change. The rewrite is guarded
// by the previously observed updated_at; a mismatch reports ErrConflict.
func (c *SQLiteCollection) UpdateOne(ctx context.Context, filter core.Filter, update core.Update) (core.UpdateResult, error) {
	doc, prevUpdated, err := c.resolve(ctx, filter)
	if err != nil {
		return core.UpdateResult{}, err
	}
	if doc == nil {
		return core.UpdateResult{}, nil
	}

	modified := applyUpdate(doc, update)
	if !modified {
		return core.UpdateResult{Matched: 1}, nil
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("serializing document for %s: %w", c.table, err)
	}

	// Keep updated_at strictly increasing even when two writes land in
	// the same millisecond.
	now := c.clock.Now().UnixMilli()
	if now <= prevUpdated {
		now = prevUpdated + 1
	}

	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET data = ?, updated_at = ? WHERE id = ? AND updated_at = ?", c.table),
		string(data), now, doc.ID(), prevUpdated)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("updating %s: %w", c.table, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("updating %s: %w", c.table, err)
	}
	if affected == 0 {
		// The row changed (or vanished) between resolve and rewrite.
		return core.UpdateResult{}, fmt.Errorf("updating %s id %s: %w", c.table, doc.ID(), core.ErrConflict)
	}

	return core.UpdateResult{Matched: 1, Modified: 1}, nil
}

// applyUpdate mutates doc in place and reports whether anything changed.
func applyUpdate(doc core.Document, update core.Update) bool {
	modified := false

	for field, value := range update.Set {
		if !jsonEqual(doc[field], value) {
			doc[field] = value
			modified = true
		}
	}

	for field, value := range update.AddToSet {
		arr, ok := doc[field].([]any)
		if !ok {
			arr = []any{}
		}
		present := false
		for _, elem := range arr {
			if jsonEqual(elem, value) {
				present = true
				break
			}
		}
		if !present {
			doc[field] = append(arr, value)
			modified = true
		}
	}

	for field, value := range update.Pull {
		arr, ok := doc[field].([]any)
		if !ok {
			continue
		}
		kept := arr[:0:0]
		for _, elem := range arr {
			if !jsonEqual(elem, value) {
				kept = append(kept, elem)
			}
		}
		if len(kept) != len(arr) {
			doc[field] = kept
			modified = true
		}
	}

	return modified
}

// DeleteOne resolves the filter to one document and deletes its row by
// physical key, reporting deleted=0 when nothing matched.
func (c *SQLiteCollection) DeleteOne(ctx context.Context, filter core.Filter) (core.DeleteResult, error) {
	doc, err := c.FindOne(ctx, filter)
	if err != nil {
		return core.DeleteResult{}, err
	}
	if doc == nil || doc.ID() == "" {
		return core.DeleteResult{}, nil
	}

	res, err := c.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.table), doc.ID())
	if err != nil {
		return core.DeleteResult{}, fmt.Errorf("deleting from %s: %w", c.table, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return core.DeleteResult{}, fmt.Errorf("deleting from %s: %w", c.table, err)
	}
	return core.DeleteResult{Deleted: deleted}, nil
}

// Compile-time interface check
var _ core.Collection = (*SQLiteCollection)(nil)
