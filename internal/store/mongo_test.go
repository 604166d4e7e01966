package store

import (
	"context"
	"reflect"
	"testing"

	"arstudio/internal/core"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter core.Filter
		want   bson.M
	}{
		{"empty", core.Filter{}, bson.M{}},
		{"by id", core.ByID("x"), bson.M{"_id": "x"}},
		{"id batch", core.Filter{IDIn: []string{"a", "b"}}, bson.M{"_id": bson.M{"$in": []string{"a", "b"}}}},
		{"equality", core.Where(map[string]any{"orgId": "o"}), bson.M{"orgId": "o"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mongoFilter(tt.filter); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("mongoFilter() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMongoUpdate(t *testing.T) {
	got := mongoUpdate(core.Update{
		Set:      map[string]any{"name": "n"},
		AddToSet: map[string]any{"tags": "t"},
		Pull:     map[string]any{"tags": "old"},
	})
	want := bson.M{
		"$set":      bson.M{"name": "n"},
		"$addToSet": bson.M{"tags": "t"},
		"$pull":     bson.M{"tags": "old"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("mongoUpdate() = %v, want %v", got, want)
	}

	if got := mongoUpdate(core.Update{}); len(got) != 0 {
		t.Errorf("empty update produced operators: %v", got)
	}
}

// The denormalized relations manager only depends on the core.Collection
// interface, so its set semantics are tested here against collection stubs.

type memoryCollection struct {
	docs map[string]core.Document
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{docs: map[string]core.Document{}}
}

func (m *memoryCollection) FindOne(_ context.Context, filter core.Filter) (core.Document, error) {
	doc, ok := m.docs[filter.ID]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

func (m *memoryCollection) Find(ctx context.Context, filter core.Filter) (core.Cursor, error) {
	return &queryCursor{run: func(context.Context, int) ([]core.Document, error) {
		return nil, nil
	}}, nil
}

func (m *memoryCollection) InsertOne(_ context.Context, doc core.Document) (string, error) {
	m.docs[doc.ID()] = doc.Clone()
	return doc.ID(), nil
}

func (m *memoryCollection) UpdateOne(_ context.Context, filter core.Filter, update core.Update) (core.UpdateResult, error) {
	doc, ok := m.docs[filter.ID]
	if !ok {
		return core.UpdateResult{}, nil
	}
	if applyUpdate(doc, update) {
		return core.UpdateResult{Matched: 1, Modified: 1}, nil
	}
	return core.UpdateResult{Matched: 1}, nil
}

func (m *memoryCollection) DeleteOne(_ context.Context, filter core.Filter) (core.DeleteResult, error) {
	if _, ok := m.docs[filter.ID]; !ok {
		return core.DeleteResult{}, nil
	}
	delete(m.docs, filter.ID)
	return core.DeleteResult{Deleted: 1}, nil
}

func TestMongoRelations(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*MongoRelations, *memoryCollection, *memoryCollection) {
		t.Helper()
		activities := newMemoryCollection()
		documents := newMemoryCollection()
		activities.docs["act-1"] = core.Document{"id": "act-1"}
		documents.docs["doc-1"] = core.Document{"id": "doc-1"}
		return NewMongoRelations(activities, documents, core.NewNopLogger()), activities, documents
	}

	t.Run("link updates both denormalized arrays", func(t *testing.T) {
		r, activities, documents := setup(t)

		if err := r.Link(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("Link: %v", err)
		}

		if got := documents.docs["doc-1"]["activityIds"]; !reflect.DeepEqual(got, []any{"act-1"}) {
			t.Errorf("document side = %v", got)
		}
		if got := activities.docs["act-1"]["documentIds"]; !reflect.DeepEqual(got, []any{"doc-1"}) {
			t.Errorf("activity side = %v", got)
		}
	})

	t.Run("relinking is idempotent", func(t *testing.T) {
		r, activities, _ := setup(t)

		for i := 0; i < 2; i++ {
			if err := r.Link(ctx, "doc-1", "act-1"); err != nil {
				t.Fatalf("link %d: %v", i, err)
			}
		}
		arr, _ := activities.docs["act-1"]["documentIds"].([]any)
		if len(arr) != 1 {
			t.Fatalf("documentIds = %v, want one element", arr)
		}
	})

	t.Run("linking a missing document is swallowed", func(t *testing.T) {
		r, activities, _ := setup(t)

		if err := r.Link(ctx, "ghost", "act-1"); err != nil {
			t.Fatalf("Link: %v", err)
		}
		if _, ok := activities.docs["act-1"]["documentIds"]; ok {
			t.Error("activity side updated for a missing document")
		}
	})

	t.Run("unlink pulls both sides", func(t *testing.T) {
		r, activities, documents := setup(t)

		if err := r.Link(ctx, "doc-1", "act-1"); err != nil {
			t.Fatal(err)
		}
		if err := r.Unlink(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("Unlink: %v", err)
		}

		if got, _ := documents.docs["doc-1"]["activityIds"].([]any); len(got) != 0 {
			t.Errorf("document side = %v, want empty", got)
		}
		if got, _ := activities.docs["act-1"]["documentIds"].([]any); len(got) != 0 {
			t.Errorf("activity side = %v, want empty", got)
		}
	})

	t.Run("traversals read the arrays and tolerate bson decoding", func(t *testing.T) {
		r, activities, documents := setup(t)

		// Arrays decoded from the wire arrive as bson.A, not []any.
		activities.docs["act-1"]["documentIds"] = bson.A{"doc-1", "doc-2"}
		documents.docs["doc-1"]["activityIds"] = []any{"act-1"}

		docs, err := r.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(docs, []string{"doc-1", "doc-2"}) {
			t.Errorf("documents = %v", docs)
		}

		acts, err := r.ActivitiesByDocument(ctx, "doc-1")
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(acts, []string{"act-1"}) {
			t.Errorf("activities = %v", acts)
		}

		missing, err := r.DocumentsByActivity(ctx, "ghost")
		if err != nil {
			t.Fatal(err)
		}
		if missing == nil || len(missing) != 0 {
			t.Errorf("missing endpoint = %v, want empty non-nil set", missing)
		}
	})
}
