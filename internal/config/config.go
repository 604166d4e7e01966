package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for arstudio.
type Config struct {
	ListenAddr  string            `toml:"listen_addr"`
	LogDir      string            `toml:"log_dir"`
	Managed     bool              `toml:"managed"` // running in the managed/production deployment context
	Store       StoreConfig       `toml:"store"`
	ObjectStore ObjectStoreConfig `toml:"object_store"`
	Tokens      TokenConfig       `toml:"tokens"`
}

// StoreConfig configures the document store. Backend selection is derived:
// the document database is used only when running managed AND a connection
// string is configured; otherwise the embedded store is used
// unconditionally.
type StoreConfig struct {
	DataDir       string `toml:"data_dir,omitempty"`       // embedded database directory
	MongoURI      string `toml:"mongo_uri,omitempty"`      // document database connection string
	MongoDatabase string `toml:"mongo_database,omitempty"` // defaults to "cluster0"
}

// ObjectStoreConfig configures the document/asset object store.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type ObjectStoreConfig struct {
	Type string `toml:"type"` // "s3" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// TokenConfig configures RAG access token issuance.
type TokenConfig struct {
	Secret string        `toml:"secret"`
	TTL    time.Duration `toml:"ttl,omitempty"` // defaults to 7 days
}

// NewConfig creates a Config with defaults appropriate for the current
// deployment context. Managed deployments get a writable path under the
// system temporary directory; everything else uses a project-local data
// directory.
func NewConfig(managed bool) *Config {
	dataDir := filepath.Join(".data")
	if managed {
		dataDir = filepath.Join(os.TempDir(), "arstudio", "data")
	}
	return &Config{
		ListenAddr: ":8080",
		LogDir:     filepath.Join(dataDir, "log"),
		Managed:    managed,
		Store: StoreConfig{
			DataDir:       dataDir,
			MongoDatabase: "cluster0",
		},
		ObjectStore: ObjectStoreConfig{Type: "memory"},
		Tokens:      TokenConfig{TTL: 7 * 24 * time.Hour},
	}
}

// ApplyEnv overlays deployment-context environment variables onto the
// config. Environment values win over file values because backend
// selection is an environment property, not a file property.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ARSTUDIO_MANAGED"); v == "1" || v == "true" {
		c.Managed = true
	}
	if v := os.Getenv("ARSTUDIO_MONGO_URI"); v != "" {
		c.Store.MongoURI = v
	}
	if v := os.Getenv("ARSTUDIO_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
	if v := os.Getenv("ARSTUDIO_API_SECRET"); v != "" {
		c.Tokens.Secret = v
	}
	if v := os.Getenv("ARSTUDIO_S3_ENDPOINT"); v != "" {
		c.ObjectStore.Type = "s3"
		c.ObjectStore.S3Endpoint = v
	}
	if v := os.Getenv("ARSTUDIO_S3_REGION"); v != "" {
		c.ObjectStore.S3Region = v
	}
	if v := os.Getenv("ARSTUDIO_S3_BUCKET"); v != "" {
		c.ObjectStore.S3Bucket = v
	}
	if v := os.Getenv("ARSTUDIO_S3_ACCESS_KEY"); v != "" {
		c.ObjectStore.S3AccessKey = v
	}
	if v := os.Getenv("ARSTUDIO_S3_SECRET_KEY"); v != "" {
		c.ObjectStore.S3SecretKey = v
	}
}

// UseDocumentDB reports whether the managed document database should back
// logical collections. Both conditions must hold; otherwise the embedded
// store is used.
func (c *Config) UseDocumentDB() bool {
	return c.Managed && c.Store.MongoURI != ""
}

// MongoDatabaseName returns the configured document database name.
func (c *Config) MongoDatabaseName() string {
	if c.Store.MongoDatabase != "" {
		return c.Store.MongoDatabase
	}
	return "cluster0"
}

// DatabasePath returns the embedded database file location, under the
// configured data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Store.DataDir, "arstudio.db")
}

// TokenTTL returns the RAG token lifetime.
func (c *Config) TokenTTL() time.Duration {
	if c.Tokens.TTL > 0 {
		return c.Tokens.TTL
	}
	return 7 * 24 * time.Hour
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies
// environment overrides. A missing file yields defaults, so a bare
// environment-driven deployment needs no config file at all.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewConfig(false)
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Init initializes a new config file at the specified path with the
// provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
