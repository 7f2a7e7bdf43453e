package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "app", Password: "pw", Name: "electives", SSLMode: "disable"})
	assert.Equal(t, "host=db port=5433 user=app password=pw dbname=electives sslmode=disable", dsn)
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "000001_init_schema.up.sql")
	assert.Contains(t, names, "000001_init_schema.down.sql")
}
