package qa

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/embed"
	"guardian/internal/llm"
	"guardian/internal/repo"
)

func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"README.md":          "Payment gateway service. Install with make install.",
		"src/payments.py":    "def charge(card):\n    stripe.charge(card)\n",
		"config/app.yaml":    "stripe:\n  key: sk_test\n",
		"node_modules/a.js":  "ignored()",
		"assets/logo.png":    "binary",
		"docs/security.rst":  "Security considerations: rotate stripe keys.",
	}
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func localCloner() *repo.Cloner {
	c := repo.NewCloner(nil)
	c.AllowLocal = true
	return c
}

func newManager(fake *llm.FakeClient) *Manager {
	return NewManager(localCloner(), fake, embed.NewHash(1<<12), 4, time.Minute, nil)
}

func TestSession_IndexAndAsk(t *testing.T) {
	root := writeRepo(t)
	fake := llm.NewFakeClient("It charges cards through stripe.")
	s := NewSession("s1", root, fake, embed.NewHash(1<<12), nil)

	stats, err := s.Index(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 4, stats.Chunks)

	ans, err := s.Ask(context.Background(), "How are stripe cards charged?")
	require.NoError(t, err)
	assert.Equal(t, "It charges cards through stripe.", ans.Answer)
	require.NotEmpty(t, ans.Sources)
	assert.LessOrEqual(t, len(ans.Sources), RetrieveK)
	assert.Contains(t, ans.Sources, "src/payments.py")

	calls := fake.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "Question: How are stripe cards charged?")
	assert.Contains(t, calls[0], "File: src/payments.py")

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "user", h[0].Role)
	assert.Equal(t, "assistant", h[1].Role)
	assert.Equal(t, ans.Sources, h[1].Sources)
}

func TestSession_IdenticalFilesKeptApart(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"a/const.py", "b/const.py"} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("RETRIES = 3\n"), 0o644))
	}
	s := NewSession("s1", root, llm.NewFakeClient("ok"), embed.NewHash(1<<12), nil)

	stats, err := s.Index(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)

	ans, err := s.Ask(context.Background(), "How many retries?")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a/const.py", "b/const.py"}, ans.Sources)
}

func TestSession_EmptyRepository(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("x"), 0o644))
	s := NewSession("s", root, llm.NewFakeClient(""), embed.NewHash(64), nil)
	_, err := s.Index(context.Background(), root)
	assert.Error(t, err)
}

func TestSession_InsightsAndCompliance(t *testing.T) {
	root := writeRepo(t)
	fake := llm.NewFakeClient("generic answer",
		llm.FakeRule{Contains: "main purpose", Reply: "A payment gateway."},
		llm.FakeRule{Contains: "rotate keys", Reply: "Yes, see docs/security.rst."},
	)
	s := NewSession("s", root, fake, embed.NewHash(1<<12), nil)
	_, err := s.Index(context.Background(), root)
	require.NoError(t, err)

	ins, err := s.Insights(context.Background())
	require.NoError(t, err)
	assert.Len(t, ins, len(InsightQuestions))
	assert.Equal(t, "A payment gateway.", ins[InsightQuestions[0]])

	checks, err := s.CheckCompliance(context.Background(), []string{"rotate keys", " "})
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "Yes, see docs/security.rst.", checks[0].Assessment)
	assert.NotEmpty(t, checks[0].Evidence)
	assert.Empty(t, s.History(), "insights and checks are not part of the chat history")
}

func TestSession_SerialisesQuestions(t *testing.T) {
	root := writeRepo(t)
	fake := llm.NewFakeClient("ok")
	s := NewSession("s", root, fake, embed.NewHash(1<<10), nil)
	_, err := s.Index(context.Background(), root)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Ask(context.Background(), "what is this?")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	h := s.History()
	require.Len(t, h, 16)
	for i := 0; i < len(h); i += 2 {
		assert.Equal(t, "user", h[i].Role)
		assert.Equal(t, "assistant", h[i+1].Role)
	}
}

func TestManager_Lifecycle(t *testing.T) {
	root := writeRepo(t)
	m := newManager(llm.NewFakeClient("answer"))

	s, stats, err := m.Init(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Documents)
	assert.Equal(t, 1, m.Count())

	ans, err := m.Ask(context.Background(), s.ID, "what?")
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Answer)

	// by repository url, same session
	_, err = m.Ask(context.Background(), root, "again?")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Count())

	h, err := m.History(s.ID)
	require.NoError(t, err)
	assert.Len(t, h, 4)

	assert.True(t, m.Delete(s.ID))
	assert.False(t, m.Delete(s.ID))
	_, err = m.History(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Ask(context.Background(), s.ID, "gone?")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = os.Stat(root)
	assert.NoError(t, err, "local repositories are never removed")
}

func TestManager_AskUnknownRepoInitialises(t *testing.T) {
	root := writeRepo(t)
	m := newManager(llm.NewFakeClient("auto"))
	ans, err := m.Ask(context.Background(), root, "what is it?")
	require.NoError(t, err)
	assert.Equal(t, "auto", ans.Answer)
	assert.Equal(t, 1, m.Count())
}

func TestManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(localCloner(), llm.NewFakeClient("a"), embed.NewHash(64), 1, time.Minute, nil)
	first, _, err := m.Init(context.Background(), writeRepo(t))
	require.NoError(t, err)
	_, _, err = m.Init(context.Background(), writeRepo(t))
	require.NoError(t, err)

	assert.Equal(t, 1, m.Count())
	_, err = m.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = first.Ask(context.Background(), "closed?")
	assert.Error(t, err)
}

func TestManager_CloneFailure(t *testing.T) {
	m := newManager(llm.NewFakeClient("x"))
	_, _, err := m.Init(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
	assert.Zero(t, m.Count())
}
