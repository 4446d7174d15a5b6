package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuzdan/internal/storage"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cuzdan.db")
	t.Setenv("JWT_SECRET", strings.Repeat("k", 32))
	t.Setenv("DATA_BACKEND", "sqlite")
	t.Setenv("SQLITE_DB_PATH", dbPath)
	t.Setenv("SEED_FILE", "")
	t.Setenv("AMQP_URL", "")
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")
	return dbPath
}

func TestRunCreatesUser(t *testing.T) {
	dbPath := setupEnv(t)
	var stdout, stderr bytes.Buffer

	code := run([]string{"-email", "Ayse@Example.com"}, strings.NewReader("s3cret-pass\n"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "created user ayse@example.com")

	repo, err := storage.NewSQLiteRepository(dbPath)
	require.NoError(t, err)
	defer repo.Close()
	u, err := repo.GetUserByEmail(context.Background(), "ayse@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
}

func TestRunRejectsDuplicate(t *testing.T) {
	setupEnv(t)
	args := []string{"-email", "dup@example.com", "-password", "long-enough"}

	require.Equal(t, 0, run(args, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{}))

	var stderr bytes.Buffer
	assert.Equal(t, 1, run(args, strings.NewReader(""), &bytes.Buffer{}, &stderr))
	assert.Contains(t, stderr.String(), "already exists")
}

func TestRunValidation(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name     string
		args     []string
		stdin    string
		wantCode int
		wantErr  string
	}{
		{"missing email", nil, "", 2, "-email is required"},
		{"unknown flag", []string{"-nope"}, "", 2, "flag provided but not defined"},
		{"weak password", []string{"-email", "a@example.com", "-password", "short"}, "", 1, "at least 8 characters"},
		{"empty prompt", []string{"-email", "a@example.com"}, "\n", 1, "empty password"},
		{"bad email", []string{"-email", "not-an-email", "-password", "long-enough"}, "", 1, "invalid email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := run(tt.args, strings.NewReader(tt.stdin), &bytes.Buffer{}, &stderr)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}
