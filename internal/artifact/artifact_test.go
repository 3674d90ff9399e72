package artifact

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/report"
	"guardian/internal/types"
)

func TestObjectKey(t *testing.T) {
	k, err := objectKey(" run1 ", "/report.json")
	require.NoError(t, err)
	assert.Equal(t, "run1/report.json", k)

	for _, tc := range [][2]string{{"", "a"}, {"r", ""}, {"a/b", "x"}, {"..", "x"}, {"r", "../../etc/passwd"}} {
		_, err := objectKey(tc[0], tc[1])
		assert.Error(t, err, tc)
	}
}

func testStores(t *testing.T) map[string]Store {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{"memory": NewMemoryStore(), "file": fs}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "run", "b.txt", []byte("two")))
			require.NoError(t, s.Put(ctx, "run", "a.json", []byte("one")))
			require.NoError(t, s.Put(ctx, "other", "c.json", []byte("x")))

			got, err := s.Get(ctx, "run", "a.json")
			require.NoError(t, err)
			assert.Equal(t, "one", string(got))

			names, err := s.List(ctx, "run")
			require.NoError(t, err)
			assert.Equal(t, []string{"a.json", "b.txt"}, names)

			_, err = s.Get(ctx, "run", "missing.json")
			assert.ErrorIs(t, err, ErrNotFound)

			names, err = s.List(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, names)
		})
	}
}

func TestFileStore_URL(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.GetURL(ctx, "run", "report.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "run", "report.json", []byte("{}")))
	u, err := s.GetURL(ctx, "run", "report.json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.True(t, strings.HasSuffix(u, "/run/report.json"))
}

func TestExporter(t *testing.T) {
	store := NewMemoryStore()
	ex := NewExporter(store, nil)
	res := types.AuditResult{
		Repository:      "https://github.com/acme/shop",
		Mode:            types.ModeHybrid,
		TotalViolations: 1,
		Violations:      []types.Violation{{File: "a.py", Line: 1, Explanation: "bad", RuleViolated: "R1"}},
	}

	out, err := ex.Export(context.Background(), res)
	require.NoError(t, err)
	_, err = uuid.Parse(out.RunID)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.json", "report.txt", "report.sarif"}, out.Files)
	assert.Empty(t, out.URLs)

	raw, err := store.Get(context.Background(), out.RunID, "report.json")
	require.NoError(t, err)
	var back types.AuditResult
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, res.Violations, back.Violations)
}

func TestExporter_SelectedFormats(t *testing.T) {
	store := NewMemoryStore()
	out, err := NewExporter(store, nil, report.FormatSARIF).ExportRun(context.Background(), "fixed", types.AuditResult{})
	require.NoError(t, err)
	assert.Equal(t, "fixed", out.RunID)
	names, err := store.List(context.Background(), "fixed")
	require.NoError(t, err)
	assert.Equal(t, []string{"report.sarif"}, names)
}
