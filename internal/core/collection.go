package core

import "context"

// Document is an opaque JSON object as stored by a collection. The store
// enforces no schema beyond the "id" field; everything else belongs to the
// caller.
type Document map[string]any

// ID returns the document's identifier, or "" when unset.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Clone returns a shallow copy of the document. Array and object values are
// shared with the original.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Filter is the closed set of query shapes a collection supports.
// Exactly one of the three forms is normally populated:
//
//   - ID: direct lookup by document identifier (fast path)
//   - IDIn: batch lookup by a set of identifiers
//   - Eq: per-field equality conditions, ANDed together
//
// A zero Filter matches every document. When both ID and Eq are set, the ID
// is treated as an additional equality condition on the "id" field.
type Filter struct {
	ID   string
	IDIn []string
	Eq   map[string]any
}

// ByID returns a filter matching a single document by identifier.
func ByID(id string) Filter { return Filter{ID: id} }

// Where returns a filter with per-field equality conditions.
func Where(eq map[string]any) Filter { return Filter{Eq: eq} }

// Update is the closed set of update operators a collection supports.
// Operators are applied in a fixed order: Set, then AddToSet, then Pull.
type Update struct {
	// Set shallow-merges the named fields over the existing document.
	Set map[string]any
	// AddToSet appends the value to the named array field unless an equal
	// element is already present. A missing or non-array field becomes a
	// one-element array.
	AddToSet map[string]any
	// Pull removes every element equal to the value from the named array
	// field. A missing field is left untouched.
	Pull map[string]any
}

// UpdateResult reports how an UpdateOne call resolved.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// DeleteResult reports how a DeleteOne call resolved.
type DeleteResult struct {
	Deleted int64
}

// Cursor is a lazy, finite, restartable view over a Find result. Each call
// re-executes the underlying query, so a cursor stays valid across writes.
type Cursor interface {
	// All materializes every matching document.
	All(ctx context.Context) ([]Document, error)

	// First returns the first matching document, or nil when none match.
	First(ctx context.Context) (Document, error)
}

// Collection is the uniform handle over one logical collection, regardless
// of which physical backend serves it.
//
// Read operations report absence as a nil document with a nil error, never
// as an error, so callers can use plain presence checks. Write operations
// propagate failures.
type Collection interface {
	// FindOne returns the first document matching the filter, or nil when
	// none match.
	FindOne(ctx context.Context, filter Filter) (Document, error)

	// Find returns a cursor over every document matching the filter.
	Find(ctx context.Context, filter Filter) (Cursor, error)

	// InsertOne stores a new document and returns its identifier,
	// generating one when the document has none. The caller's document is
	// never mutated. Inserting an identifier that already exists fails
	// with ErrDuplicateID.
	InsertOne(ctx context.Context, doc Document) (string, error)

	// UpdateOne resolves the filter to a single document and applies the
	// update operators to it. A filter matching nothing reports
	// matched=0 without error. A concurrent write between resolve and
	// rewrite fails with ErrConflict and can be retried.
	UpdateOne(ctx context.Context, filter Filter, update Update) (UpdateResult, error)

	// DeleteOne resolves the filter to a single document and removes it,
	// reporting deleted=0 when nothing matched.
	DeleteOne(ctx context.Context, filter Filter) (DeleteResult, error)
}

// Relations maintains the many-to-many association between activities and
// documents. Implementations branch on the physical backend: an explicit
// join table on the embedded store, denormalized array fields on the
// document database.
type Relations interface {
	// Link associates a document with an activity. Idempotent. On the
	// embedded backend both endpoints must exist; a missing endpoint is
	// logged and the call returns nil so an otherwise-successful upload
	// is never failed over association metadata.
	Link(ctx context.Context, documentID, activityID string) error

	// ForceLink associates without a prior existence check, upserting the
	// association and best-effort updating the document's own
	// denormalized array field. On the embedded backend the join table
	// still enforces foreign keys; an upsert against a missing endpoint
	// is logged and skipped rather than failed.
	ForceLink(ctx context.Context, documentID, activityID string) error

	// Unlink removes the association. Unlinking a pair that was never
	// linked is a no-op.
	Unlink(ctx context.Context, documentID, activityID string) error

	// DocumentsByActivity returns the document identifiers associated
	// with the activity, most recently linked first where ordering
	// metadata exists.
	DocumentsByActivity(ctx context.Context, activityID string) ([]string, error)

	// ActivitiesByDocument is the mirror traversal.
	ActivitiesByDocument(ctx context.Context, documentID string) ([]string, error)
}

// Backend identifies which physical storage implementation is active.
type Backend int

const (
	// BackendSQLite is the embedded relational emulator.
	BackendSQLite Backend = iota
	// BackendMongo is the managed document database.
	BackendMongo
)

func (b Backend) String() string {
	switch b {
	case BackendSQLite:
		return "sqlite"
	case BackendMongo:
		return "mongo"
	default:
		return "unknown"
	}
}
