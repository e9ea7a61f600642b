package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "us-east-1", cfg.SES.Region)
	assert.Equal(t, int64(32*1024*1024), cfg.Import.MaxFileBytes)
	assert.Equal(t, 100000, cfg.Import.MaxRows)
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
  host: 127.0.0.1
database:
  url: postgres://localhost/attendees?sslmode=disable
redis:
  addr: redis:6379
ses:
  enabled: true
  region: eu-west-1
  sender: tickets@example.com
import:
  max_file_bytes: 1048576
  max_rows: 500
archive:
  s3_bucket: import-archive
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/attendees?sslmode=disable", cfg.Database.GetURL())
	assert.Equal(t, "redis:6379", cfg.Redis.GetAddr())
	assert.True(t, cfg.SES.Enabled)
	assert.Equal(t, "eu-west-1", cfg.SES.Region)
	assert.Equal(t, int64(1048576), cfg.Import.MaxFileBytes)
	assert.Equal(t, 500, cfg.Import.MaxRows)
	assert.Equal(t, "import-archive", cfg.Archive.S3Bucket)
	assert.Equal(t, "imports/", cfg.Archive.S3Prefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://file-value
redis:
  addr: file:6379
`)

	t.Setenv("DATABASE_URL", "postgres://env-value")
	t.Setenv("REDIS_ADDR", "env:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env-value", cfg.Database.GetURL())
	assert.Equal(t, "env:6379", cfg.Redis.GetAddr())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a map")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
