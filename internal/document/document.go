// Package document loads regulatory PDFs and source files and splits them
// into overlapping passages for the vector stores.
package document

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"

	"guardian/internal/vectorstore"
)

const (
	ChunkSize    = 1000
	ChunkOverlap = 200
)

// Splitter returns the recursive character splitter used for every corpus.
func Splitter() textsplitter.TextSplitter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(ChunkSize),
		textsplitter.WithChunkOverlap(ChunkOverlap),
	)
}

// LoadPDF extracts the text of every page and splits it. Each passage
// carries the PDF path as its source.
func LoadPDF(ctx context.Context, path string) ([]vectorstore.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pages, err := documentloaders.NewPDF(f, st.Size()).LoadAndSplit(ctx, Splitter())
	if err != nil {
		return nil, fmt.Errorf("load pdf %s: %w", path, err)
	}
	return convert(pages, map[string]string{vectorstore.MetaSource: path}), nil
}

// SplitText splits arbitrary text; meta is copied onto every passage.
func SplitText(ctx context.Context, text string, meta map[string]string) ([]vectorstore.Document, error) {
	docs, err := documentloaders.NewText(strings.NewReader(text)).LoadAndSplit(ctx, Splitter())
	if err != nil {
		return nil, err
	}
	return convert(docs, meta), nil
}

func convert(in []schema.Document, meta map[string]string) []vectorstore.Document {
	out := make([]vectorstore.Document, 0, len(in))
	for _, d := range in {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		m := make(map[string]string, len(meta)+1)
		for k, v := range meta {
			m[k] = v
		}
		if p, ok := d.Metadata["page"]; ok {
			m[vectorstore.MetaPage] = fmt.Sprint(p)
		}
		out = append(out, vectorstore.Document{Content: d.PageContent, Metadata: m})
	}
	return out
}
