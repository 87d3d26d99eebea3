package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
database:
  host: localhost
  user: dinner
  password: secret
  dbname: dinnerparty
auth:
  jwt_secret: s3cr3t
aws:
  region: us-east-1
  video_bucket: party-videos
`

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Matching.MaxGroupSize)
	assert.Equal(t, 3, cfg.Matching.ReadyThreshold)
	assert.Equal(t, 10, cfg.Matching.JoinCodeAttempts)
	assert.Equal(t, 6*time.Hour, cfg.Matching.StaleAfter)
	assert.Equal(t, "@every 15m", cfg.Matching.SweepSchedule)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
server:
  port: 9000
matching:
  stale_after: 3h
  max_group_size: 4
`))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3*time.Hour, cfg.Matching.StaleAfter)
	assert.Equal(t, 4, cfg.Matching.MaxGroupSize)
}

func TestParseRejectsMissingRequired(t *testing.T) {
	_, err := Parse([]byte(`database: {host: localhost}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dbname")
}

func TestParseRejectsThresholdAboveSize(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
matching:
  max_group_size: 2
  ready_threshold: 3
`))
	require.Error(t, err)
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "party-videos", cfg.AWS.VideoBucket)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", db.DSN())
	assert.Equal(t, "pgx5://u:p@db:5432/d?sslmode=disable", db.URL())
}
