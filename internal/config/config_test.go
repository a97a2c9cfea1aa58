package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rguptar/motion/internal/storage"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.Mongo.URI)
	assert.Equal(t, "motion", cfg.Storage.Mongo.Database)
	assert.Equal(t, "none", cfg.Events.Publisher)
	assert.True(t, cfg.Logging.Console.Enabled)
	assert.False(t, cfg.Logging.File.Enabled)
	assert.Empty(t, cfg.Namespaces)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  backend: mongo
  mongo:
    database: motion_test
events:
  publisher: nats
  nats:
    url: nats://broker:4222
namespaces:
  - name: chat
    schema:
      - name: prompt
        type: string
      - name: score
        type: float
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mongo", cfg.Storage.Backend)
	assert.Equal(t, "motion_test", cfg.Storage.Mongo.Database)
	// Unset fields keep their defaults.
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.Mongo.URI)
	assert.Equal(t, "nats://broker:4222", cfg.Events.Nats.URL)
	assert.Equal(t, "motion", cfg.Events.Nats.SubjectPrefix)

	require.Len(t, cfg.Namespaces, 1)
	assert.Equal(t, "chat", cfg.Namespaces[0].Name)
	assert.Equal(t, storage.Schema{
		{Name: "prompt", Type: storage.FieldString},
		{Name: "score", Type: storage.FieldFloat},
	}, cfg.Namespaces[0].Schema)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "postgres"
	assert.Error(t, cfg.Validate())
	cfg.Storage.Backend = "memory"

	cfg.Events.Publisher = "kafka"
	assert.Error(t, cfg.Validate())
	cfg.Events.Publisher = "none"

	cfg.Namespaces = []NamespaceConfig{{Name: ""}}
	assert.Error(t, cfg.Validate())

	cfg.Namespaces = []NamespaceConfig{{
		Name:   "chat",
		Schema: storage.Schema{{Name: "x", Type: "decimal"}},
	}}
	assert.Error(t, cfg.Validate())
}
