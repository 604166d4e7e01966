package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewConfig(t *testing.T) {
	t.Run("self-hosted defaults", func(t *testing.T) {
		cfg := NewConfig(false)
		if cfg.Managed {
			t.Error("managed = true, want false")
		}
		if cfg.Store.DataDir != ".data" {
			t.Errorf("data dir = %q, want .data", cfg.Store.DataDir)
		}
		if cfg.UseDocumentDB() {
			t.Error("self-hosted config selected the document database")
		}
	})

	t.Run("managed defaults use a writable temp path", func(t *testing.T) {
		cfg := NewConfig(true)
		if !cfg.Managed {
			t.Error("managed = false, want true")
		}
		if !strings.Contains(cfg.Store.DataDir, "arstudio") {
			t.Errorf("data dir = %q, want a path under the arstudio temp dir", cfg.Store.DataDir)
		}
	})
}

func TestUseDocumentDB(t *testing.T) {
	tests := []struct {
		name     string
		managed  bool
		mongoURI string
		want     bool
	}{
		{"managed with connection string", true, "mongodb://x", true},
		{"managed without connection string", true, "", false},
		{"self-hosted with connection string", false, "mongodb://x", false},
		{"self-hosted without connection string", false, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(tt.managed)
			cfg.Store.MongoURI = tt.mongoURI
			if got := cfg.UseDocumentDB(); got != tt.want {
				t.Errorf("UseDocumentDB() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("ARSTUDIO_MANAGED", "true")
	t.Setenv("ARSTUDIO_MONGO_URI", "mongodb://env-host")
	t.Setenv("ARSTUDIO_DATA_DIR", "/var/lib/arstudio")
	t.Setenv("ARSTUDIO_API_SECRET", "env-secret")
	t.Setenv("ARSTUDIO_S3_ENDPOINT", "https://s3.example.test")
	t.Setenv("ARSTUDIO_S3_BUCKET", "arstudio-docs")

	cfg := NewConfig(false)
	cfg.ApplyEnv()

	if !cfg.Managed {
		t.Error("managed not applied from environment")
	}
	if cfg.Store.MongoURI != "mongodb://env-host" {
		t.Errorf("mongo uri = %q", cfg.Store.MongoURI)
	}
	if cfg.Store.DataDir != "/var/lib/arstudio" {
		t.Errorf("data dir = %q", cfg.Store.DataDir)
	}
	if cfg.Tokens.Secret != "env-secret" {
		t.Errorf("secret = %q", cfg.Tokens.Secret)
	}
	if cfg.ObjectStore.Type != "s3" {
		t.Errorf("object store type = %q, want s3 once an endpoint is set", cfg.ObjectStore.Type)
	}
	if cfg.ObjectStore.S3Bucket != "arstudio-docs" {
		t.Errorf("bucket = %q", cfg.ObjectStore.S3Bucket)
	}
	if !cfg.UseDocumentDB() {
		t.Error("environment-driven managed deployment did not select the document database")
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := NewConfig(false)
	cfg.Store.DataDir = "/data"
	if got := cfg.DatabasePath(); got != filepath.Join("/data", "arstudio.db") {
		t.Errorf("DatabasePath() = %q", got)
	}
}

func TestTokenTTL(t *testing.T) {
	cfg := NewConfig(false)
	cfg.Tokens.TTL = 0
	if got := cfg.TokenTTL(); got != 7*24*time.Hour {
		t.Errorf("default ttl = %v, want 168h", got)
	}
	cfg.Tokens.TTL = time.Hour
	if got := cfg.TokenTTL(); got != time.Hour {
		t.Errorf("ttl = %v, want 1h", got)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	cfg := NewConfig(false)
	cfg.ListenAddr = ":9090"
	cfg.Store.MongoDatabase = "studio"
	cfg.ObjectStore.Type = "s3"
	cfg.ObjectStore.S3Bucket = "bucket-1"

	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.ListenAddr != ":9090" {
		t.Errorf("listen addr = %q", got.ListenAddr)
	}
	if got.MongoDatabaseName() != "studio" {
		t.Errorf("database name = %q", got.MongoDatabaseName())
	}
	if got.ObjectStore.S3Bucket != "bucket-1" {
		t.Errorf("bucket = %q", got.ObjectStore.S3Bucket)
	}
}

func TestReadFromFileMissing(t *testing.T) {
	cfg, err := ReadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("ReadFromFile: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("listen addr = %q, want default :8080", cfg.ListenAddr)
	}
}
