// Package discover finds repository files that loosely match search
// patterns. Recall matters more than precision here: any file a pattern
// retrieves becomes a candidate.
package discover

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/hashicorp/go-hclog"

	"guardian/internal/document"
	"guardian/internal/embed"
	"guardian/internal/scan"
	"guardian/internal/types"
	"guardian/internal/vectorstore"
)

const DefaultTopK = 5

type Discoverer struct {
	// MinScore drops passages whose similarity is not above it, so a
	// pattern sharing nothing with the repository selects no file.
	MinScore float64

	store *vectorstore.MemoryStore
	topK  int
	boost []string
	log   hclog.Logger
}

func New(emb embed.Embedder, topK int, logger hclog.Logger) *Discoverer {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Discoverer{store: vectorstore.NewMemory(emb), topK: topK, log: logger.Named("discover")}
}

type IndexStats struct {
	Files    int
	Passages int
	Skipped  int
}

// Index loads files (repo-relative) from root into the repository store.
func (d *Discoverer) Index(ctx context.Context, root string, files []string) (IndexStats, error) {
	var st IndexStats
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		text, err := scan.ReadRepoText(root, rel)
		if err != nil {
			d.log.Warn("skipping unreadable file", "file", rel, "error", err)
			st.Skipped++
			continue
		}
		docs, err := document.SplitText(ctx, text, map[string]string{
			vectorstore.MetaSource:    rel,
			vectorstore.MetaExtension: strings.ToLower(path.Ext(rel)),
		})
		if err != nil {
			st.Skipped++
			continue
		}
		for i := range docs {
			docs[i].ID = vectorstore.SourceID(rel, docs[i].Content)
		}
		added, err := d.store.Add(ctx, docs)
		if err != nil {
			return st, fmt.Errorf("index %s: %w", rel, err)
		}
		st.Files++
		st.Passages += added.Added
	}
	d.log.Debug("indexed repository", "files", st.Files, "passages", st.Passages, "skipped", st.Skipped)
	return st, nil
}

// SetBoost records extensions the model considered likely relevant.
func (d *Discoverer) SetBoost(exts []string) { d.boost = exts }

// K is the per-pattern retrieval depth: TopK, doubled when any boosted
// extension is present in the index.
func (d *Discoverer) K() int {
	for _, ext := range d.boost {
		if d.store.HasMeta(vectorstore.MetaExtension, strings.ToLower(ext)) {
			return d.topK * 2
		}
	}
	return d.topK
}

// Discover issues one query per pattern and unions the sources returned.
func (d *Discoverer) Discover(ctx context.Context, patterns []string) (types.CandidateFileSet, error) {
	out := types.NewCandidateFileSet()
	k := d.K()
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		matches, err := d.store.Search(ctx, p, k, vectorstore.Filter{})
		if err != nil {
			return out, fmt.Errorf("search %q: %w", p, err)
		}
		for _, m := range matches {
			if m.Score <= d.MinScore {
				continue
			}
			out.Add(m.Source())
		}
	}
	return out, nil
}

func (d *Discoverer) Close() error { return d.store.Close() }
