package document

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guardian/internal/vectorstore"
)

func TestSplitText_ChunksWithMetadata(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("Personal data must be encrypted at rest and in transit.\n")
	}
	docs, err := SplitText(context.Background(), b.String(), map[string]string{vectorstore.MetaSource: "src/a.py"})
	require.NoError(t, err)
	require.Greater(t, len(docs), 1)
	for _, d := range docs {
		assert.LessOrEqual(t, len(d.Content), ChunkSize)
		assert.Equal(t, "src/a.py", d.Source())
	}
}

func TestSplitText_BlankInput(t *testing.T) {
	docs, err := SplitText(context.Background(), "   \n ", nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadPDF_Missing(t *testing.T) {
	_, err := LoadPDF(context.Background(), "/nonexistent/reg.pdf")
	assert.Error(t, err)
}
