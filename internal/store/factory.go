package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"arstudio/internal/config"
	"arstudio/internal/core"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Client is the backend selector and facade. It decides once, at
// construction, whether logical collections are backed by the managed
// document database or by the embedded emulator, and hands out uniform
// collection handles either way. The chosen backend is carried by the
// client and injected into its relations manager rather than living in
// process-global state.
type Client struct {
	backend core.Backend
	logger  core.Logger
	clock   core.Clock
	idgen   core.IDGenerator

	db          *sql.DB       // embedded backend
	mongoClient *mongo.Client // managed backend
	mongoDBName string

	mu          sync.Mutex
	collections map[string]core.Collection
	relations   core.Relations
}

// NewClient constructs the facade from explicit configuration. The
// document database is selected only when running in the managed context
// with a connection string configured; otherwise the embedded store is
// opened (and its schema ensured) unconditionally.
func NewClient(ctx context.Context, cfg *config.Config, logger core.Logger, clock core.Clock, idgen core.IDGenerator) (*Client, error) {
	c := &Client{
		logger:      logger,
		clock:       clock,
		idgen:       idgen,
		mongoDBName: cfg.MongoDatabaseName(),
		collections: make(map[string]core.Collection),
	}

	if cfg.UseDocumentDB() {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		mc, err := mongo.Connect(options.Client().ApplyURI(cfg.Store.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connecting to document database: %w", err)
		}
		if err := mc.Ping(pingCtx, nil); err != nil {
			_ = mc.Disconnect(context.Background())
			return nil, fmt.Errorf("document database unreachable: %w", err)
		}
		c.backend = core.BackendMongo
		c.mongoClient = mc
		logger.Info("storage backend selected", "backend", c.backend)
		return c, nil
	}

	if cfg.Managed {
		logger.Warn("managed mode without a document database URI, falling back to the embedded store")
	}
	db, err := OpenConnection(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening embedded database: %w", err)
	}
	EnsureSchema(db, logger)

	c.backend = core.BackendSQLite
	c.db = db
	logger.Info("storage backend selected", "backend", c.backend, "path", cfg.DatabasePath())
	return c, nil
}

// Backend reports which storage implementation is active.
func (c *Client) Backend() core.Backend { return c.backend }

// DB exposes the embedded database handle for migrations and diagnostics.
// Returns nil in managed mode.
func (c *Client) DB() *sql.DB { return c.db }

// Database returns a handle scoped to one logical database name. The name
// only matters in managed mode; the embedded store has a single file.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

// DefaultDatabase returns the handle route handlers normally use.
func (c *Client) DefaultDatabase() *Database {
	return c.Database(c.mongoDBName)
}

// Relations returns the backend-appropriate relations manager.
func (c *Client) Relations() core.Relations {
	c.mu.Lock()
	r := c.relations
	c.mu.Unlock()
	if r != nil {
		return r
	}

	db := c.Database(c.mongoDBName)
	if c.backend == core.BackendMongo {
		r = NewMongoRelations(db.Collection("activities"), db.Collection("documents"), c.logger)
	} else {
		r = NewSQLiteRelations(c.db, db.Collection("documents"), c.logger, c.clock)
	}

	c.mu.Lock()
	if c.relations == nil {
		c.relations = r
	}
	r = c.relations
	c.mu.Unlock()
	return r
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.mongoClient != nil {
		return c.mongoClient.Disconnect(context.Background())
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Database is the first level of the database(name).collection(name)
// accessor.
type Database struct {
	client *Client
	name   string
}

// Collection returns the handle for one logical collection, memoized per
// logical name so schema and index setup runs once per process.
func (d *Database) Collection(name string) core.Collection {
	c := d.client
	key := d.name + "/" + name

	c.mu.Lock()
	defer c.mu.Unlock()

	if coll, ok := c.collections[key]; ok {
		return coll
	}

	var coll core.Collection
	if c.backend == core.BackendMongo {
		coll = NewMongoCollection(c.mongoClient.Database(d.name).Collection(name), c.idgen)
	} else {
		coll = NewSQLiteCollection(c.db, name, c.logger, c.clock, c.idgen)
	}
	c.collections[key] = coll
	return coll
}
