package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SplitsIdentifiers(t *testing.T) {
	got := Tokenize(`DB_PASSWORD = "hunter2"; userName := getUserName(42)`)
	assert.Equal(t, []string{"db", "password", "hunter2", "user", "name", "get", "user", "name"}, got)
}

func TestTokenize_IgnoresNumbersAndSymbols(t *testing.T) {
	assert.Empty(t, Tokenize("123 + 456 == !!"))
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()
	a, err := h.EmbedQuery(ctx, "database credentials")
	require.NoError(t, err)
	docs, err := h.EmbedDocuments(ctx, []string{"database credentials", "render button"})
	require.NoError(t, err)
	assert.Equal(t, a, docs[0])
	assert.Len(t, docs[1], 64)
}

func TestHashEmbedder_EmptyTextIsZero(t *testing.T) {
	v, err := NewHash(8).EmbedQuery(context.Background(), "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

type countingEmbedder struct {
	*HashEmbedder
	queries int
}

func (c *countingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	c.queries++
	return c.HashEmbedder.EmbedQuery(ctx, text)
}

func TestCached_QueryHitsCache(t *testing.T) {
	inner := &countingEmbedder{HashEmbedder: NewHash(16)}
	c, err := NewCached(inner, 4)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := c.EmbedQuery(ctx, "sql injection")
	require.NoError(t, err)
	b, err := c.EmbedQuery(ctx, "sql injection")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, inner.queries)
}
