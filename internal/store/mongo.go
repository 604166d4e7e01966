package store

import (
	"context"
	"errors"
	"fmt"

	"arstudio/internal/core"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// MongoCollection adapts a native document-database collection to the
// core.Collection interface so call sites written against the emulator's
// subset behave identically in managed mode. The logical identifier is
// mirrored into _id, keeping the physical key and the document's own id
// field equal, same as the emulator's row invariant.
type MongoCollection struct {
	coll  *mongo.Collection
	idgen core.IDGenerator
}

// NewMongoCollection wraps a native collection.
func NewMongoCollection(coll *mongo.Collection, idgen core.IDGenerator) *MongoCollection {
	return &MongoCollection{coll: coll, idgen: idgen}
}

func mongoFilter(f core.Filter) bson.M {
	out := bson.M{}
	if f.ID != "" {
		out["_id"] = f.ID
	}
	if len(f.IDIn) > 0 {
		out["_id"] = bson.M{"$in": f.IDIn}
	}
	for field, value := range f.Eq {
		out[field] = value
	}
	return out
}

func mongoUpdate(u core.Update) bson.M {
	out := bson.M{}
	if len(u.Set) > 0 {
		out["$set"] = bson.M(u.Set)
	}
	if len(u.AddToSet) > 0 {
		out["$addToSet"] = bson.M(u.AddToSet)
	}
	if len(u.Pull) > 0 {
		out["$pull"] = bson.M(u.Pull)
	}
	return out
}

func (c *MongoCollection) FindOne(ctx context.Context, filter core.Filter) (core.Document, error) {
	var doc core.Document
	err := c.coll.FindOne(ctx, mongoFilter(filter)).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("findOne on %s: %w", c.coll.Name(), err)
	}
	delete(doc, "_id")
	return doc, nil
}

func (c *MongoCollection) Find(ctx context.Context, filter core.Filter) (core.Cursor, error) {
	return &queryCursor{run: func(ctx context.Context, limit int) ([]core.Document, error) {
		cur, err := c.coll.Find(ctx, mongoFilter(filter))
		if err != nil {
			return nil, fmt.Errorf("find on %s: %w", c.coll.Name(), err)
		}
		defer cur.Close(ctx)

		var docs []core.Document
		for cur.Next(ctx) {
			var doc core.Document
			if err := cur.Decode(&doc); err != nil {
				return nil, fmt.Errorf("decoding document from %s: %w", c.coll.Name(), err)
			}
			delete(doc, "_id")
			docs = append(docs, doc)
			if limit > 0 && len(docs) >= limit {
				break
			}
		}
		if err := cur.Err(); err != nil {
			return nil, fmt.Errorf("iterating %s: %w", c.coll.Name(), err)
		}
		return docs, nil
	}}, nil
}

func (c *MongoCollection) InsertOne(ctx context.Context, doc core.Document) (string, error) {
	stored := doc.Clone()
	id := stored.ID()
	if id == "" {
		id = c.idgen.New()
		stored["id"] = id
	}
	stored["_id"] = id

	if _, err := c.coll.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("inserting into %s: %w", c.coll.Name(), core.ErrDuplicateID)
		}
		return "", fmt.Errorf("inserting into %s: %w", c.coll.Name(), err)
	}
	return id, nil
}

func (c *MongoCollection) UpdateOne(ctx context.Context, filter core.Filter, update core.Update) (core.UpdateResult, error) {
	u := mongoUpdate(update)
	if len(u) == 0 {
		// The driver rejects an empty update document. Report the match
		// count the way the embedded backend does: matched, nothing
		// modified.
		doc, err := c.FindOne(ctx, filter)
		if err != nil {
			return core.UpdateResult{}, err
		}
		if doc == nil {
			return core.UpdateResult{}, nil
		}
		return core.UpdateResult{Matched: 1, Modified: 0}, nil
	}
	res, err := c.coll.UpdateOne(ctx, mongoFilter(filter), u)
	if err != nil {
		return core.UpdateResult{}, fmt.Errorf("updateOne on %s: %w", c.coll.Name(), err)
	}
	return core.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}, nil
}

func (c *MongoCollection) DeleteOne(ctx context.Context, filter core.Filter) (core.DeleteResult, error) {
	res, err := c.coll.DeleteOne(ctx, mongoFilter(filter))
	if err != nil {
		return core.DeleteResult{}, fmt.Errorf("deleteOne on %s: %w", c.coll.Name(), err)
	}
	return core.DeleteResult{Deleted: res.DeletedCount}, nil
}

// MongoRelations maintains the activity-document association as
// denormalized array fields on both endpoints: documentIds on the
// activity, activityIds on the document, updated with set semantics.
// Deleting an endpoint does not cascade into the other side's array on
// this backend.
type MongoRelations struct {
	activities core.Collection
	documents  core.Collection
	logger     core.Logger
}

// NewMongoRelations creates a relations manager over the two denormalized
// array fields.
func NewMongoRelations(activities, documents core.Collection, logger core.Logger) *MongoRelations {
	return &MongoRelations{activities: activities, documents: documents, logger: logger}
}

// Link adds each side's identifier to the other side's array. AddToSet
// semantics make re-linking a no-op.
func (r *MongoRelations) Link(ctx context.Context, documentID, activityID string) error {
	res, err := r.documents.UpdateOne(ctx, core.ByID(documentID),
		core.Update{AddToSet: map[string]any{"activityIds": activityID}})
	if err != nil {
		return fmt.Errorf("linking document %s to activity %s: %w", documentID, activityID, err)
	}
	if res.Matched == 0 {
		r.logger.Error("link skipped: document not found", "documentId", documentID, "activityId", activityID)
		return nil
	}

	if _, err := r.activities.UpdateOne(ctx, core.ByID(activityID),
		core.Update{AddToSet: map[string]any{"documentIds": documentID}}); err != nil {
		return fmt.Errorf("linking activity %s to document %s: %w", activityID, documentID, err)
	}
	return nil
}

// ForceLink has the same effect as Link on this backend; there is no
// existence verification to skip.
func (r *MongoRelations) ForceLink(ctx context.Context, documentID, activityID string) error {
	return r.Link(ctx, documentID, activityID)
}

// Unlink pulls each side's identifier from the other side's array.
func (r *MongoRelations) Unlink(ctx context.Context, documentID, activityID string) error {
	if _, err := r.documents.UpdateOne(ctx, core.ByID(documentID),
		core.Update{Pull: map[string]any{"activityIds": activityID}}); err != nil {
		return fmt.Errorf("unlinking document %s from activity %s: %w", documentID, activityID, err)
	}
	if _, err := r.activities.UpdateOne(ctx, core.ByID(activityID),
		core.Update{Pull: map[string]any{"documentIds": documentID}}); err != nil {
		return fmt.Errorf("unlinking activity %s from document %s: %w", activityID, documentID, err)
	}
	return nil
}

// DocumentsByActivity reads the activity's documentIds array. Array order
// is insertion order; no link timestamps exist on this backend.
func (r *MongoRelations) DocumentsByActivity(ctx context.Context, activityID string) ([]string, error) {
	return r.readIDs(ctx, r.activities, activityID, "documentIds")
}

// ActivitiesByDocument reads the document's activityIds array.
func (r *MongoRelations) ActivitiesByDocument(ctx context.Context, documentID string) ([]string, error) {
	return r.readIDs(ctx, r.documents, documentID, "activityIds")
}

func (r *MongoRelations) readIDs(ctx context.Context, coll core.Collection, id, field string) ([]string, error) {
	doc, err := coll.FindOne(ctx, core.ByID(id))
	if err != nil {
		r.logger.Error("relation traversal failed", "id", id, "field", field, "error", err)
		return []string{}, nil
	}
	if doc == nil {
		return []string{}, nil
	}

	var arr []any
	switch a := doc[field].(type) {
	case []any:
		arr = a
	case bson.A:
		arr = a
	}
	ids := []string{}
	for _, elem := range arr {
		if s, ok := elem.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// Compile-time interface checks
var (
	_ core.Collection = (*MongoCollection)(nil)
	_ core.Relations  = (*MongoRelations)(nil)
)
