package discover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/embed"
)

func repoWithSecrets(t *testing.T) (string, []string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"config/settings.py": "DATABASE_HOST = 'db.internal'\nDATABASE_PASSWORD = 'hunter2'  # database credentials\n",
	}
	for i := 0; i < 8; i++ {
		files[fmt.Sprintf("ui/widget%d.jsx", i)] = fmt.Sprintf("export function Widget%d() { return <button>Click</button> }\n", i)
	}
	var rels []string
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		rels = append(rels, rel)
	}
	return root, rels
}

func TestDiscover_DatabaseCredentials(t *testing.T) {
	root, files := repoWithSecrets(t)
	d := New(embed.NewHash(1<<12), 1, nil)
	defer d.Close()

	st, err := d.Index(context.Background(), root, files)
	require.NoError(t, err)
	assert.Equal(t, 9, st.Files)

	got, err := d.Discover(context.Background(), []string{"Hardcoded database credentials such as a password literal"})
	require.NoError(t, err)
	assert.True(t, got.Has("config/settings.py"))
	assert.Equal(t, 1, got.Len())
}

func TestDiscover_UnionAcrossPatterns(t *testing.T) {
	root, files := repoWithSecrets(t)
	d := New(embed.NewHash(1<<12), 1, nil)
	defer d.Close()
	_, err := d.Index(context.Background(), root, files)
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), []string{"database password", "Widget3 button", "  "})
	require.NoError(t, err)
	assert.Equal(t, []string{"config/settings.py", "ui/widget3.jsx"}, got.Sorted())
}

func TestK_DoubledForPresentBoostedExtension(t *testing.T) {
	root, files := repoWithSecrets(t)
	d := New(embed.NewHash(64), 5, nil)
	defer d.Close()
	_, err := d.Index(context.Background(), root, files)
	require.NoError(t, err)

	assert.Equal(t, 5, d.K())
	d.SetBoost([]string{".rb"})
	assert.Equal(t, 5, d.K())
	d.SetBoost([]string{".rb", ".JSX"})
	assert.Equal(t, 10, d.K())
}

func TestIndex_SkipsUnreadable(t *testing.T) {
	d := New(embed.NewHash(16), 0, nil)
	st, err := d.Index(context.Background(), t.TempDir(), []string{"nope.py"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Skipped)
}

func TestDiscover_NoOverlapSelectsNothing(t *testing.T) {
	root, files := repoWithSecrets(t)
	d := New(embed.NewHash(1<<16), 5, nil)
	defer d.Close()
	_, err := d.Index(context.Background(), root, files)
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), []string{"kubernetes helm chart"})
	require.NoError(t, err)
	assert.Zero(t, got.Len())
}

func TestDiscover_IdenticalFilesBothSelected(t *testing.T) {
	root := t.TempDir()
	body := []byte("DATABASE_PASSWORD = 'hunter2'\n")
	files := []string{"config/dev.py", "config/prod.py"}
	for _, rel := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, body, 0o644))
	}
	d := New(embed.NewHash(1<<12), 5, nil)
	defer d.Close()

	st, err := d.Index(context.Background(), root, files)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Passages)

	// Re-indexing the same files adds nothing.
	st, err = d.Index(context.Background(), root, files)
	require.NoError(t, err)
	assert.Zero(t, st.Passages)

	got, err := d.Discover(context.Background(), []string{"database password literal"})
	require.NoError(t, err)
	assert.Equal(t, files, got.Sorted())
}

func TestDiscover_WeakOverlapStillSelected(t *testing.T) {
	root, files := repoWithSecrets(t)
	d := New(embed.NewHash(1<<16), 5, nil)
	defer d.Close()
	_, err := d.Index(context.Background(), root, files)
	require.NoError(t, err)

	got, err := d.Discover(context.Background(), []string{"kubernetes helm chart password"})
	require.NoError(t, err)
	assert.True(t, got.Has("config/settings.py"))
}
