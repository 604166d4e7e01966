package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"arstudio/internal/core"
	"arstudio/internal/store"
	"arstudio/internal/testutil"
)

type collectionFixture struct {
	db    *sql.DB
	coll  *store.SQLiteCollection
	clock *testutil.StubClock
}

func newTestCollection(t *testing.T, table string) *collectionFixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	clock := testutil.FixedClock()
	coll := store.NewSQLiteCollection(db, table, core.NewNopLogger(), clock, testutil.NewStubIDGenerator())

	return &collectionFixture{db: db, coll: coll, clock: clock}
}

func TestInsertOne(t *testing.T) {
	ctx := context.Background()

	t.Run("generates an id when the document has none", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		doc := core.Document{"name": "Anatomy Lab"}
		id, err := f.coll.InsertOne(ctx, doc)
		if err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
		if id == "" {
			t.Fatal("expected a generated id")
		}
		if _, ok := doc["id"]; ok {
			t.Error("caller's document was mutated with the generated id")
		}

		got, err := f.coll.FindOne(ctx, core.ByID(id))
		if err != nil {
			t.Fatalf("FindOne: %v", err)
		}
		if got == nil {
			t.Fatal("inserted document not found")
		}
		if got["name"] != "Anatomy Lab" {
			t.Errorf("name = %v, want Anatomy Lab", got["name"])
		}
		if got.ID() != id {
			t.Errorf("stored id = %q, want %q", got.ID(), id)
		}
	})

	t.Run("keeps a caller-supplied id", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		id, err := f.coll.InsertOne(ctx, core.Document{"id": "act-1", "name": "Chem"})
		if err != nil {
			t.Fatalf("InsertOne: %v", err)
		}
		if id != "act-1" {
			t.Errorf("id = %q, want act-1", id)
		}
	})

	t.Run("rejects a duplicate id", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "act-1"}); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		_, err := f.coll.InsertOne(ctx, core.Document{"id": "act-1"})
		if !errors.Is(err, core.ErrDuplicateID) {
			t.Fatalf("err = %v, want ErrDuplicateID", err)
		}
	})
}

func TestFindOne(t *testing.T) {
	ctx := context.Background()

	t.Run("missing document is nil without error", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		got, err := f.coll.FindOne(ctx, core.ByID("nope"))
		if err != nil {
			t.Fatalf("FindOne: %v", err)
		}
		if got != nil {
			t.Errorf("got %v, want nil", got)
		}
	})

	t.Run("equality filter on document fields", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "a", "orgId": "org-1", "archived": false}); err != nil {
			t.Fatal(err)
		}
		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "b", "orgId": "org-2", "archived": true}); err != nil {
			t.Fatal(err)
		}

		got, err := f.coll.FindOne(ctx, core.Where(map[string]any{"orgId": "org-2", "archived": true}))
		if err != nil {
			t.Fatalf("FindOne: %v", err)
		}
		if got == nil || got.ID() != "b" {
			t.Fatalf("got %v, want document b", got)
		}
	})

	t.Run("malformed filter field degrades to not-found", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		got, err := f.coll.FindOne(ctx, core.Where(map[string]any{"bad-field'); DROP TABLE activities;--": "x"}))
		if err != nil {
			t.Fatalf("FindOne: %v", err)
		}
		if got != nil {
			t.Errorf("got %v, want nil", got)
		}
		// The table must have survived.
		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "still-here"}); err != nil {
			t.Fatalf("insert after malformed filter: %v", err)
		}
	})
}

func TestFind(t *testing.T) {
	ctx := context.Background()

	t.Run("batch lookup by id set", func(t *testing.T) {
		f := newTestCollection(t, "documents")

		for _, id := range []string{"d1", "d2", "d3"} {
			if _, err := f.coll.InsertOne(ctx, core.Document{"id": id}); err != nil {
				t.Fatal(err)
			}
		}

		cursor, err := f.coll.Find(ctx, core.Filter{IDIn: []string{"d1", "d3", "missing"}})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}
		docs, err := cursor.All(ctx)
		if err != nil {
			t.Fatalf("All: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("got %d documents, want 2", len(docs))
		}
	})

	t.Run("cursor re-executes on every call", func(t *testing.T) {
		f := newTestCollection(t, "documents")

		cursor, err := f.coll.Find(ctx, core.Filter{})
		if err != nil {
			t.Fatalf("Find: %v", err)
		}

		docs, err := cursor.All(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(docs) != 0 {
			t.Fatalf("got %d documents before insert, want 0", len(docs))
		}

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "late"}); err != nil {
			t.Fatal(err)
		}

		first, err := cursor.First(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil || first.ID() != "late" {
			t.Fatalf("got %v, want the late insert", first)
		}
	})
}

func TestUpdateOne(t *testing.T) {
	ctx := context.Background()

	t.Run("set merges fields", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "a", "name": "old", "level": 1}); err != nil {
			t.Fatal(err)
		}

		res, err := f.coll.UpdateOne(ctx, core.ByID("a"), core.Update{Set: map[string]any{"name": "new"}})
		if err != nil {
			t.Fatalf("UpdateOne: %v", err)
		}
		if res.Matched != 1 || res.Modified != 1 {
			t.Fatalf("result = %+v, want matched=1 modified=1", res)
		}

		got, _ := f.coll.FindOne(ctx, core.ByID("a"))
		if got["name"] != "new" {
			t.Errorf("name = %v, want new", got["name"])
		}
		if got["level"] != float64(1) {
			t.Errorf("level = %v, want 1 preserved", got["level"])
		}
	})

	t.Run("set with equal value reports modified=0", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "a", "name": "same"}); err != nil {
			t.Fatal(err)
		}
		res, err := f.coll.UpdateOne(ctx, core.ByID("a"), core.Update{Set: map[string]any{"name": "same"}})
		if err != nil {
			t.Fatalf("UpdateOne: %v", err)
		}
		if res.Matched != 1 || res.Modified != 0 {
			t.Fatalf("result = %+v, want matched=1 modified=0", res)
		}
	})

	t.Run("no match reports matched=0 without error", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		res, err := f.coll.UpdateOne(ctx, core.ByID("nope"), core.Update{Set: map[string]any{"x": 1}})
		if err != nil {
			t.Fatalf("UpdateOne: %v", err)
		}
		if res.Matched != 0 {
			t.Fatalf("result = %+v, want matched=0", res)
		}
	})

	t.Run("addToSet is idempotent", func(t *testing.T) {
		f := newTestCollection(t, "documents")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "d"}); err != nil {
			t.Fatal(err)
		}

		add := core.Update{AddToSet: map[string]any{"activityIds": "act-1"}}
		if _, err := f.coll.UpdateOne(ctx, core.ByID("d"), add); err != nil {
			t.Fatalf("first addToSet: %v", err)
		}
		res, err := f.coll.UpdateOne(ctx, core.ByID("d"), add)
		if err != nil {
			t.Fatalf("second addToSet: %v", err)
		}
		if res.Modified != 0 {
			t.Fatalf("second addToSet modified=%d, want 0", res.Modified)
		}

		got, _ := f.coll.FindOne(ctx, core.ByID("d"))
		arr, _ := got["activityIds"].([]any)
		if len(arr) != 1 || arr[0] != "act-1" {
			t.Fatalf("activityIds = %v, want [act-1]", got["activityIds"])
		}
	})

	t.Run("pull removes equal elements and ignores missing fields", func(t *testing.T) {
		f := newTestCollection(t, "documents")

		if _, err := f.coll.InsertOne(ctx, core.Document{
			"id":          "d",
			"activityIds": []any{"a1", "a2", "a1"},
		}); err != nil {
			t.Fatal(err)
		}

		res, err := f.coll.UpdateOne(ctx, core.ByID("d"), core.Update{Pull: map[string]any{"activityIds": "a1"}})
		if err != nil {
			t.Fatalf("pull: %v", err)
		}
		if res.Modified != 1 {
			t.Fatalf("pull modified=%d, want 1", res.Modified)
		}

		got, _ := f.coll.FindOne(ctx, core.ByID("d"))
		arr, _ := got["activityIds"].([]any)
		if len(arr) != 1 || arr[0] != "a2" {
			t.Fatalf("activityIds = %v, want [a2]", got["activityIds"])
		}

		// Pulling from a field that does not exist changes nothing.
		res, err = f.coll.UpdateOne(ctx, core.ByID("d"), core.Update{Pull: map[string]any{"tags": "x"}})
		if err != nil {
			t.Fatalf("pull on missing field: %v", err)
		}
		if res.Matched != 1 || res.Modified != 0 {
			t.Fatalf("result = %+v, want matched=1 modified=0", res)
		}
	})

	t.Run("updated_at stays strictly increasing under a frozen clock", func(t *testing.T) {
		f := newTestCollection(t, "activities")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "a", "n": 0}); err != nil {
			t.Fatal(err)
		}

		readUpdatedAt := func() int64 {
			t.Helper()
			var v int64
			if err := f.db.QueryRow("SELECT updated_at FROM activities WHERE id = 'a'").Scan(&v); err != nil {
				t.Fatalf("reading updated_at: %v", err)
			}
			return v
		}

		prev := readUpdatedAt()
		for i := 1; i <= 3; i++ {
			if _, err := f.coll.UpdateOne(ctx, core.ByID("a"), core.Update{Set: map[string]any{"n": i}}); err != nil {
				t.Fatalf("update %d: %v", i, err)
			}
			cur := readUpdatedAt()
			if cur <= prev {
				t.Fatalf("updated_at %d not greater than previous %d", cur, prev)
			}
			prev = cur
		}
	})

}

func TestDeleteOne(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes a matching document", func(t *testing.T) {
		f := newTestCollection(t, "assets")

		if _, err := f.coll.InsertOne(ctx, core.Document{"id": "x"}); err != nil {
			t.Fatal(err)
		}
		res, err := f.coll.DeleteOne(ctx, core.ByID("x"))
		if err != nil {
			t.Fatalf("DeleteOne: %v", err)
		}
		if res.Deleted != 1 {
			t.Fatalf("deleted = %d, want 1", res.Deleted)
		}
		got, _ := f.coll.FindOne(ctx, core.ByID("x"))
		if got != nil {
			t.Fatal("document still present after delete")
		}
	})

	t.Run("missing document reports deleted=0", func(t *testing.T) {
		f := newTestCollection(t, "assets")

		res, err := f.coll.DeleteOne(ctx, core.ByID("nope"))
		if err != nil {
			t.Fatalf("DeleteOne: %v", err)
		}
		if res.Deleted != 0 {
			t.Fatalf("deleted = %d, want 0", res.Deleted)
		}
	})
}
