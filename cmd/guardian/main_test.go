package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/types"
)

func offlineEnv(t *testing.T) string {
	dir := t.TempDir()
	t.Setenv("GUARDIAN_OFFLINE", "true")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GUARDIAN_VECTOR_PG_DSN", "")
	t.Setenv("GUARDIAN_VECTOR_DIR", filepath.Join(dir, "legal_db"))
	t.Setenv("GUARDIAN_REPORT_DIR", filepath.Join(dir, "reports"))
	t.Setenv("GUARDIAN_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func localRepo(t *testing.T) string {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("print('hi')\n"), 0o644))
	return root
}

func TestAuditCommand_JSON(t *testing.T) {
	offlineEnv(t)
	repo := localRepo(t)

	out, stderr, err := run(t, "audit", repo, "--brief", "Never log secrets.", "--format", "json")
	require.NoError(t, err)

	var res types.AuditResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, repo, res.Repository)
	assert.Equal(t, 1, res.Statistics.ScannedFiles)
	assert.NotNil(t, res.Violations)
	assert.Contains(t, stderr, "[progress] complete")
}

func TestAuditCommand_OutputFileAndExport(t *testing.T) {
	dir := offlineEnv(t)
	repo := localRepo(t)
	target := filepath.Join(dir, "out.sarif")

	_, stderr, err := run(t, "audit", repo, "--brief", "Never log secrets.", "-f", "sarif", "-o", target, "--export", "--mode", "exhaustive")
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version": "2.1.0"`)
	assert.Contains(t, stderr, "exported run")

	runs, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestAuditCommand_RequiresBrief(t *testing.T) {
	offlineEnv(t)
	_, _, err := run(t, "audit", localRepo(t))
	require.Error(t, err)
}

func TestAuditCommand_RejectsUnknownFormat(t *testing.T) {
	offlineEnv(t)
	_, _, err := run(t, "audit", localRepo(t), "--brief", "x", "--format", "xml")
	require.Error(t, err)
}

func TestAuditCommand_ChunkLinesOutOfRange(t *testing.T) {
	offlineEnv(t)
	_, _, err := run(t, "audit", localRepo(t), "--brief", "x", "--chunk-lines", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk size 5")
}

func TestBriefCommand_MissingPDF(t *testing.T) {
	dir := offlineEnv(t)
	_, _, err := run(t, "brief", filepath.Join(dir, "missing.pdf"))
	require.Error(t, err)
}

func TestAskCommand_Question(t *testing.T) {
	offlineEnv(t)
	repo := localRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(repo, "README.md"), []byte("# Demo\nA tiny demo.\n"), 0o644))

	out, stderr, err := run(t, "ask", repo, "-q", "What does it print?")
	require.NoError(t, err)
	assert.Contains(t, out, "Q: What does it print?")
	assert.Contains(t, stderr, "indexed 2 documents")
}

func TestDBInfo_MissingStore(t *testing.T) {
	offlineEnv(t)
	out, _, err := run(t, "db", "info")
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "disk", body["backend"])
	disk := body["disk"].(map[string]any)
	assert.Equal(t, false, disk["exists"])
}

func TestDBClear_NoStore(t *testing.T) {
	offlineEnv(t)
	out, _, err := run(t, "db", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "document store cleared")
}
