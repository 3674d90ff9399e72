// Package vectorstore keeps embedded passages and answers similarity
// queries over them. Passage ids are derived from content, so adding the
// same text twice is a no-op.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
	"sort"
	"strings"
)

// ErrStoreUnavailable is returned when a store is locked by another
// process, corrupted, or its backend cannot be reached.
var ErrStoreUnavailable = errors.New("vector store unavailable")

const (
	MetaSource    = "source"
	MetaExtension = "extension"
	MetaPage      = "page"
)

type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (d Document) Source() string { return d.Metadata[MetaSource] }

type Match struct {
	Document
	Score float64 `json:"score"`
}

// Filter narrows a search by the source metadata. The zero value matches
// everything.
type Filter struct {
	Source       string
	SourceSuffix string
}

func (f Filter) Match(meta map[string]string) bool {
	src := meta[MetaSource]
	if f.Source != "" && src != f.Source {
		return false
	}
	if f.SourceSuffix != "" && !strings.HasSuffix(src, f.SourceSuffix) {
		return false
	}
	return true
}

type AddStats struct {
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}

type Store interface {
	Add(ctx context.Context, docs []Document) (AddStats, error)
	Search(ctx context.Context, query string, k int, f Filter) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// ContentID is the first 16 hex chars of sha256(text).
func ContentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// SourceID scopes a content id to the file it came from, so identical
// passages in different files stay distinct.
func SourceID(source, text string) string {
	return ContentID(source + "\x00" + text)
}

// prepare assigns ids and drops repeats within the batch itself.
func prepare(docs []Document) (out []Document, dups int) {
	seen := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			d.ID = ContentID(d.Content)
		}
		if _, ok := seen[d.ID]; ok {
			dups++
			continue
		}
		seen[d.ID] = struct{}{}
		out = append(out, d)
	}
	return out, dups
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// topK ranks by score, keeping insertion order among ties.
func topK(ms []Match, k int) []Match {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Score > ms[j].Score })
	if k > 0 && len(ms) > k {
		ms = ms[:k]
	}
	return ms
}
