package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestFiles_RelevantOnly(t *testing.T) {
	root := t.TempDir()
	write(t, root, "app.py", "print(1)")
	write(t, root, "web/index.html", "<p>")
	write(t, root, "README.md", "# readme")
	write(t, root, "node_modules/x.js", "ignored")
	write(t, root, "venv/lib/site.py", "ignored")
	write(t, root, ".git/config.go", "ignored")
	write(t, root, "deep/level2/Main.JAVA", "class A {}")

	got, err := Files(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "deep/level2/Main.JAVA", "web/index.html"}, got)
}

func TestFiles_CustomExtensionsAndSize(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.md", "small")
	write(t, root, "b.md", "this one is far too large")
	write(t, root, "c.py", "x")

	got, err := Files(context.Background(), root, Options{Extensions: []string{".md"}, MaxSize: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md"}, got)
}

func TestExtensionCounts(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "")
	write(t, root, "b.py", "")
	write(t, root, "c.go", "")
	counts, err := ExtensionCounts(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{".py": 2, ".go": 1}, counts)
}

func TestWalk_Canceled(t *testing.T) {
	root := t.TempDir()
	write(t, root, "a.py", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Walk(ctx, root, Options{}, func(FileVisit) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "python", Language("x/y.py"))
	assert.Equal(t, "typescript", Language("A.TSX"))
	assert.Equal(t, "text", Language("Makefile"))
	assert.True(t, IsRelevant("main.go"))
	assert.False(t, IsRelevant("notes.txt"))
}

func TestDecodeText_ReplacesInvalidBytes(t *testing.T) {
	got := DecodeText([]byte("ok \xff\xfe done"))
	assert.Contains(t, got, "�")
	assert.Contains(t, got, "done")

	got = DecodeText([]byte("\xef\xbb\xbfhello"))
	assert.Equal(t, "hello", got)
}

func TestReadRepoText_StaysInsideCheckout(t *testing.T) {
	root := t.TempDir()
	write(t, root, "src/app.py", "\xef\xbb\xbfprint(1)\n")

	got, err := ReadRepoText(root, "src/app.py")
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", got)

	_, err = ReadRepoText(root, "../outside.py")
	assert.Error(t, err)
}
