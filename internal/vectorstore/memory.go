package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"guardian/internal/embed"
)

type entry struct {
	Doc Document  `json:"doc"`
	Vec []float32 `json:"vec"`
}

// MemoryStore is an in-process store, typically one per repository.
type MemoryStore struct {
	emb embed.Embedder

	mu      sync.RWMutex
	entries []entry
	ids     map[string]struct{}
	closed  bool
}

func NewMemory(emb embed.Embedder) *MemoryStore {
	return &MemoryStore{emb: emb, ids: make(map[string]struct{})}
}

func (s *MemoryStore) Add(ctx context.Context, docs []Document) (AddStats, error) {
	batch, dups := prepare(docs)

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return AddStats{}, fmt.Errorf("%w: store closed", ErrStoreUnavailable)
	}
	fresh := batch[:0:0]
	for _, d := range batch {
		if _, ok := s.ids[d.ID]; ok {
			dups++
			continue
		}
		fresh = append(fresh, d)
	}
	s.mu.RUnlock()

	stats := AddStats{Duplicates: dups}
	if len(fresh) == 0 {
		return stats, nil
	}
	texts := make([]string, len(fresh))
	for i, d := range fresh {
		texts[i] = d.Content
	}
	vecs, err := s.emb.EmbedDocuments(ctx, texts)
	if err != nil {
		return stats, fmt.Errorf("embed documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range fresh {
		// a concurrent Add may have inserted it meanwhile
		if _, ok := s.ids[d.ID]; ok {
			stats.Duplicates++
			continue
		}
		s.ids[d.ID] = struct{}{}
		s.entries = append(s.entries, entry{Doc: d, Vec: vecs[i]})
		stats.Added++
	}
	return stats, nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, k int, f Filter) ([]Match, error) {
	q, err := s.emb.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", ErrStoreUnavailable)
	}
	var out []Match
	for _, e := range s.entries {
		if !f.Match(e.Doc.Metadata) {
			continue
		}
		out = append(out, Match{Document: e.Doc, Score: cosine(q, e.Vec)})
	}
	return topK(out, k), nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Sources lists distinct source values in insertion order.
func (s *MemoryStore) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, e := range s.entries {
		src := e.Doc.Source()
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}

// HasMeta reports whether any passage carries meta[key] == value.
func (s *MemoryStore) HasMeta(key, value string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Doc.Metadata[key] == value {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	s.ids = make(map[string]struct{})
	return nil
}

func (s *MemoryStore) snapshot() []entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entry(nil), s.entries...)
}

func (s *MemoryStore) restore(entries []entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if _, ok := s.ids[e.Doc.ID]; ok {
			continue
		}
		s.ids[e.Doc.ID] = struct{}{}
		s.entries = append(s.entries, e)
	}
}
