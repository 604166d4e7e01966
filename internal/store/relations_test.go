package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"arstudio/internal/core"
	"arstudio/internal/store"
	"arstudio/internal/testutil"
)

type relationsFixture struct {
	db         *sql.DB
	activities core.Collection
	documents  core.Collection
	relations  *store.SQLiteRelations
	clock      *testutil.StubClock
}

func newTestRelations(t *testing.T) *relationsFixture {
	t.Helper()

	db := testutil.NewTestDB(t)
	clock := testutil.FixedClock()
	idgen := testutil.NewStubIDGenerator()
	logger := core.NewNopLogger()

	activities := store.NewSQLiteCollection(db, "activities", logger, clock, idgen)
	documents := store.NewSQLiteCollection(db, "documents", logger, clock, idgen)
	relations := store.NewSQLiteRelations(db, documents, logger, clock)

	return &relationsFixture{
		db:         db,
		activities: activities,
		documents:  documents,
		relations:  relations,
		clock:      clock,
	}
}

func (f *relationsFixture) seed(t *testing.T, ctx context.Context, activityIDs, documentIDs []string) {
	t.Helper()
	for _, id := range activityIDs {
		if _, err := f.activities.InsertOne(ctx, core.Document{"id": id}); err != nil {
			t.Fatalf("seeding activity %s: %v", id, err)
		}
	}
	for _, id := range documentIDs {
		if _, err := f.documents.InsertOne(ctx, core.Document{"id": id}); err != nil {
			t.Fatalf("seeding document %s: %v", id, err)
		}
	}
}

func TestLink(t *testing.T) {
	ctx := context.Background()

	t.Run("is idempotent", func(t *testing.T) {
		f := newTestRelations(t)
		f.seed(t, ctx, []string{"act-1"}, []string{"doc-1"})

		for i := 0; i < 2; i++ {
			if err := f.relations.Link(ctx, "doc-1", "act-1"); err != nil {
				t.Fatalf("link %d: %v", i, err)
			}
		}

		ids, err := f.relations.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatalf("DocumentsByActivity: %v", err)
		}
		if len(ids) != 1 || ids[0] != "doc-1" {
			t.Fatalf("ids = %v, want [doc-1]", ids)
		}
	})

	t.Run("missing endpoint is swallowed", func(t *testing.T) {
		f := newTestRelations(t)
		f.seed(t, ctx, []string{"act-1"}, nil)

		if err := f.relations.Link(ctx, "ghost-doc", "act-1"); err != nil {
			t.Fatalf("link with missing document: %v", err)
		}
		if err := f.relations.Link(ctx, "ghost-doc", "ghost-act"); err != nil {
			t.Fatalf("link with missing activity: %v", err)
		}

		ids, err := f.relations.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 0 {
			t.Fatalf("ids = %v, want none", ids)
		}
	})

	t.Run("orders documents most recently linked first", func(t *testing.T) {
		f := newTestRelations(t)
		f.seed(t, ctx, []string{"act-1"}, []string{"d1", "d2", "d3"})

		for _, id := range []string{"d1", "d2", "d3"} {
			if err := f.relations.Link(ctx, id, "act-1"); err != nil {
				t.Fatalf("link %s: %v", id, err)
			}
			f.clock.Advance(time.Second)
		}

		ids, err := f.relations.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"d3", "d2", "d1"}
		if len(ids) != len(want) {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("ids = %v, want %v", ids, want)
			}
		}

		if err := f.relations.Unlink(ctx, "d2", "act-1"); err != nil {
			t.Fatal(err)
		}
		ids, err = f.relations.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 2 || ids[0] != "d3" || ids[1] != "d1" {
			t.Fatalf("ids after unlink = %v, want [d3 d1]", ids)
		}
	})

	t.Run("activity with no links yields an empty set", func(t *testing.T) {
		f := newTestRelations(t)
		f.seed(t, ctx, []string{"act-1"}, nil)

		ids, err := f.relations.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatal(err)
		}
		if ids == nil || len(ids) != 0 {
			t.Fatalf("ids = %v, want empty non-nil set", ids)
		}
	})
}

func TestForceLink(t *testing.T) {
	ctx := context.Background()

	t.Run("upserts without a prior existence check", func(t *testing.T) {
		f := newTestRelations(t)
		f.seed(t, ctx, []string{"act-1"}, []string{"doc-1"})

		if err := f.relations.ForceLink(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("ForceLink: %v", err)
		}
		if err := f.relations.ForceLink(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("ForceLink relink: %v", err)
		}
		ids, err := f.relations.ActivitiesByDocument(ctx, "doc-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 1 || ids[0] != "act-1" {
			t.Fatalf("ids = %v, want [act-1]", ids)
		}
	})

	t.Run("missing endpoints skip the join row without failing", func(t *testing.T) {
		f := newTestRelations(t)

		if err := f.relations.ForceLink(ctx, "doc-x", "act-x"); err != nil {
			t.Fatalf("ForceLink: %v", err)
		}
		ids, err := f.relations.ActivitiesByDocument(ctx, "doc-x")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 0 {
			t.Fatalf("ids = %v, want empty set", ids)
		}
	})

	t.Run("mirrors the link into the document's array field", func(t *testing.T) {
		// Only the document exists. The join row is skipped under the FK
		// constraint, but the denormalized array is still written.
		f := newTestRelations(t)
		f.seed(t, ctx, nil, []string{"doc-1"})

		if err := f.relations.ForceLink(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("ForceLink: %v", err)
		}

		doc, err := f.documents.FindOne(ctx, core.ByID("doc-1"))
		if err != nil {
			t.Fatal(err)
		}
		arr, _ := doc["activityIds"].([]any)
		if len(arr) != 1 || arr[0] != "act-1" {
			t.Fatalf("activityIds = %v, want [act-1]", doc["activityIds"])
		}
	})
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()

	t.Run("removes the association", func(t *testing.T) {
		f := newTestRelations(t)
		f.seed(t, ctx, []string{"act-1"}, []string{"doc-1"})

		if err := f.relations.Link(ctx, "doc-1", "act-1"); err != nil {
			t.Fatal(err)
		}
		if err := f.relations.Unlink(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("Unlink: %v", err)
		}

		ids, err := f.relations.DocumentsByActivity(ctx, "act-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(ids) != 0 {
			t.Fatalf("ids = %v, want none", ids)
		}
	})

	t.Run("never-linked pair is a no-op", func(t *testing.T) {
		f := newTestRelations(t)

		if err := f.relations.Unlink(ctx, "doc-1", "act-1"); err != nil {
			t.Fatalf("Unlink: %v", err)
		}
	})
}

func TestCascadeDelete(t *testing.T) {
	ctx := context.Background()
	f := newTestRelations(t)
	f.seed(t, ctx, []string{"act-1"}, []string{"doc-1", "doc-2"})

	for _, id := range []string{"doc-1", "doc-2"} {
		if err := f.relations.Link(ctx, id, "act-1"); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := f.activities.DeleteOne(ctx, core.ByID("act-1")); err != nil {
		t.Fatalf("deleting activity: %v", err)
	}

	var count int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM activity_documents").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("join rows after cascade = %d, want 0", count)
	}
}

func TestTraversalMirrors(t *testing.T) {
	ctx := context.Background()
	f := newTestRelations(t)
	f.seed(t, ctx, []string{"a1", "a2"}, []string{"d1"})

	for _, act := range []string{"a1", "a2"} {
		if err := f.relations.Link(ctx, "d1", act); err != nil {
			t.Fatal(err)
		}
		f.clock.Advance(time.Second)
	}

	acts, err := f.relations.ActivitiesByDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(acts) != 2 || acts[0] != "a2" || acts[1] != "a1" {
		t.Fatalf("activities = %v, want [a2 a1]", acts)
	}
}
