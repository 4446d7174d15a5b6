package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuzdan/internal/config"
	"cuzdan/internal/store/memory"
)

func plainHash(pw string) (string, error) { return "hashed:" + pw, nil }

const seedJSON = `{"users":[{"email":"demo@example.com","password":"demo1234","records":{
  "incomes":[{"title":"Invoice","amount":100,"category":"freelance","date":"2025-03-01T00:00:00Z","status":"received"}],
  "assets":[{"title":"Gold","type":"gold","amount":1,"unit":"oz","current_price":2000}]}}]}`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	require.NoError(t, os.WriteFile(path, []byte(seedJSON), 0o600))
	return path
}

func TestCreateMemoryBackendWithSeed(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil, plainHash)

	res, err := f.CreateBackend(ctx, Config{Type: MemoryBackend, SeedFile: writeSeed(t)})
	require.NoError(t, err)
	assert.Nil(t, res.Cleanup)

	u, err := res.Repository.GetUserByEmail(ctx, "demo@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hashed:demo1234", u.PasswordHash)

	incomes, err := res.Repository.Incomes().List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, incomes, 1)
}

func TestCreateSQLiteBackendWithSeed(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil, plainHash)
	seed := writeSeed(t)
	dbPath := filepath.Join(t.TempDir(), "nested", "cuzdan.db")

	res, err := f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: dbPath, SeedFile: seed})
	require.NoError(t, err)
	require.NotNil(t, res.Cleanup)
	require.NoError(t, res.Repository.Ping(ctx))

	u, err := res.Repository.GetUserByEmail(ctx, "demo@example.com")
	require.NoError(t, err)
	assets, err := res.Repository.Assets().List(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
	require.NoError(t, res.Cleanup())

	// reopening keeps the data and does not seed twice
	res, err = f.CreateBackend(ctx, Config{Type: SQLiteBackend, SQLiteDBPath: dbPath, SeedFile: seed})
	require.NoError(t, err)
	defer res.Cleanup()
	users, err := res.Repository.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestCreateBackendErrors(t *testing.T) {
	ctx := context.Background()

	_, err := NewFactory(nil, plainHash).CreateBackend(ctx, Config{Type: "sheets"})
	assert.Error(t, err)

	_, err = NewFactory(nil, plainHash).CreateBackend(ctx, Config{Type: SQLiteBackend})
	assert.Error(t, err)

	_, err = NewFactory(nil, nil).CreateBackend(ctx, Config{Type: MemoryBackend, SeedFile: writeSeed(t)})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = NewFactory(nil, plainHash).CreateBackend(ctx, Config{Type: MemoryBackend, SeedFile: bad})
	assert.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "/tmp/x.db", SeedFile: "seed.json"})
	require.NoError(t, err)
	assert.Equal(t, Config{Type: SQLiteBackend, SQLiteDBPath: "/tmp/x.db", SeedFile: "seed.json"}, cfg)

	_, err = FromAppConfig(&config.Config{DataBackend: "postgres"})
	assert.Error(t, err)

	_, err = FromAppConfig(nil)
	assert.Error(t, err)

	assert.Equal(t, []string{"sqlite", "memory"}, GetBackendTypeStrings())
}

var _ memory.PasswordHasher = plainHash
