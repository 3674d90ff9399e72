package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, url, name string
	}{
		{"https://github.com/acme/shop", "https://github.com/acme/shop.git", "shop"},
		{"https://github.com/acme/shop.git", "https://github.com/acme/shop.git", "shop"},
		{"acme/shop", "https://github.com/acme/shop.git", "shop"},
		{"git@github.com:acme/shop.git", "git@github.com:acme/shop.git", "shop"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			src, err := Normalize(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.url, src.CloneURL)
			assert.Equal(t, c.name, src.Name)
		})
	}
}

func TestNormalize_Invalid(t *testing.T) {
	_, err := Normalize("  ")
	assert.ErrorIs(t, err, ErrClone)
}

func TestNormalize_LocalDir(t *testing.T) {
	dir := t.TempDir()
	src, err := Normalize(dir)
	require.NoError(t, err)
	assert.Empty(t, src.CloneURL)
	assert.Equal(t, filepath.Base(dir), src.Name)
}

func TestClone_LocalDirIsNotRemoved(t *testing.T) {
	dir := t.TempDir()
	c := NewCloner(nil)
	c.AllowLocal = true
	co, err := c.Clone(context.Background(), dir)
	require.NoError(t, err)
	require.NoError(t, co.Cleanup())
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestClone_LocalRefusedByDefault(t *testing.T) {
	c := NewCloner(nil)
	c.TempDir = t.TempDir()

	_, err := c.Clone(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrLocalNotAllowed)
	assert.ErrorIs(t, err, ErrClone)

	_, err = c.Clone(context.Background(), "file://"+initRepo(t))
	assert.ErrorIs(t, err, ErrLocalNotAllowed)
	entries, _ := os.ReadDir(c.TempDir)
	assert.Empty(t, entries)
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	r, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("DB_PASSWORD = 'x'\n"), 0o644))
	wt, err := r.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("app.py")
	require.NoError(t, err)
	_, err = wt.Commit("init", &git.CommitOptions{Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()}})
	require.NoError(t, err)
	return dir
}

func TestClone_FileURLAndCleanup(t *testing.T) {
	origin := initRepo(t)
	c := NewCloner(nil)
	c.AllowLocal = true
	c.TempDir = t.TempDir()

	co, err := c.Clone(context.Background(), "file://"+origin)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(co.Dir, "app.py"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "DB_PASSWORD")

	require.NoError(t, co.Cleanup())
	_, err = os.Stat(co.Dir)
	assert.True(t, os.IsNotExist(err))
}

func TestClone_FailureLeavesNoTempDir(t *testing.T) {
	c := NewCloner(nil)
	c.AllowLocal = true
	c.TempDir = t.TempDir()
	_, err := c.Clone(context.Background(), "file://"+filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, ErrClone)
	entries, _ := os.ReadDir(c.TempDir)
	assert.Empty(t, entries)
}

func TestRemoveAll_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "objects")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	f := filepath.Join(sub, "pack")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o444))
	require.NoError(t, os.Chmod(sub, 0o555))

	require.NoError(t, RemoveAll(dir))
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
