package store

import (
	"context"

	"arstudio/internal/core"
)

// queryCursor is a lazy, restartable core.Cursor. Nothing is read from the
// database until All or First is called, and each call re-executes the
// query, so call sites that only need one result never materialize the
// full set.
type queryCursor struct {
	run func(ctx context.Context, limit int) ([]core.Document, error)
}

func (c *queryCursor) All(ctx context.Context) ([]core.Document, error) {
	return c.run(ctx, 0)
}

func (c *queryCursor) First(ctx context.Context) (core.Document, error) {
	docs, err := c.run(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}
