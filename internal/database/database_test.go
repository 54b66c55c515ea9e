package database

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/careerlane_server/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(&config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		Username: "app",
		Password: "secret",
		Database: "careerlane",
		SSLMode:  "disable",
	})
	assert.Equal(t, "host=db port=5432 user=app password=secret dbname=careerlane sslmode=disable TimeZone=UTC", dsn)
}

func TestNewRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := NewRedis(&config.RedisConfig{Host: mr.Host(), Port: mustPort(t, mr.Port())})
	require.NoError(t, err)
	defer client.Close()
}

func TestNewRedis_Unreachable(t *testing.T) {
	_, err := NewRedis(&config.RedisConfig{Host: "127.0.0.1", Port: 1})
	assert.Error(t, err)
}

func TestModels(t *testing.T) {
	assert.Len(t, Models(), 5)
}

func TestCheckEmbeddingDimensions(t *testing.T) {
	assert.NoError(t, CheckEmbeddingDimensions(384))
	assert.Error(t, CheckEmbeddingDimensions(1536))
	assert.Error(t, CheckEmbeddingDimensions(0))
}

func mustPort(t *testing.T, p string) int {
	t.Helper()
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return port
}
