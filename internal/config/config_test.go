package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, 4, c.Match.Players)
	assert.Equal(t, 50, c.Match.TargetScore)
	assert.Equal(t, 6, c.Match.MaxPip)
	assert.Equal(t, "none", c.Scoring.BlockedTie)
	assert.Empty(t, c.Mongo.Url)
	assert.Empty(t, c.Redis.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domino.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
match:
  players: 3
  targetScore: 100
scoring:
  blockedTie: split
redis:
  addr: localhost:6379
`), 0o600))

	t.Setenv("DOMINO_MATCH_PLAYERS", "2")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 2, c.Match.Players)
	assert.Equal(t, 100, c.Match.TargetScore)
	assert.Equal(t, "split", c.Scoring.BlockedTie)
	assert.Equal(t, "localhost:6379", c.Redis.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Load("")
		require.NoError(t, err)
		return c
	}

	c := base()
	c.Match.Players = 5
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = base()
	c.Match.TargetScore = 0
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = base()
	c.Match.MaxPip = 4 // 15 tiles cannot deal four hands of seven
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	c = base()
	c.Scoring.BlockedTie = "coin"
	assert.ErrorIs(t, c.Validate(), ErrInvalid)

	assert.NoError(t, base().Validate())
}

func TestFromEnv(t *testing.T) {
	c, err := FromEnv(map[string]string{
		"domino_match_players":      "2",
		"domino_match_targetscore":  "100",
		"domino_scoring_blockedtie": "split",
		"domino_mongo_url":          "mongodb://localhost:27017",
		"nakama_log_level":          "debug",
	}, "domino_")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Match.Players)
	assert.Equal(t, 100, c.Match.TargetScore)
	assert.Equal(t, "split", c.Scoring.BlockedTie)
	assert.Equal(t, "mongodb://localhost:27017", c.Mongo.Url)
	assert.Equal(t, "domino", c.Mongo.Db)

	_, err = FromEnv(map[string]string{"domino_match_players": "9"}, "domino_")
	assert.ErrorIs(t, err, ErrInvalid)
}
