// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/jsonapi/internal/blog"
	"github.com/roach88/jsonapi/internal/store"
)

// BlogStore opens a SQLite store under t.TempDir() loaded with the blog
// schema and seed data. The store is closed when the test ends.
func BlogStore(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "blog.db"), blog.MustRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.ExecScript(ctx, blog.SchemaSQL))
	require.NoError(t, s.ExecScript(ctx, blog.SeedSQL))
	return s
}
