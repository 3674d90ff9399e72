// Package brief answers questions about regulatory documents using only
// retrieved passages as context.
package brief

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"guardian/internal/document"
	"guardian/internal/llm"
	llmclient "guardian/internal/llmClient"
	"guardian/internal/vectorstore"
)

type Scope int

const (
	// ScopeCurrentDocument restricts context to the document being analysed.
	ScopeCurrentDocument Scope = iota
	// ScopeAllDocuments searches every document ever ingested.
	ScopeAllDocuments
)

const (
	scopedCandidates = 20
	contextPassages  = 5
	DefaultAllK      = 10
)

const DefaultQuestion = "Extract every technical requirement a software system must satisfy to comply with this document. " +
	"List each rule separately with a short name and a concrete description of what code must or must not do."

const answerPrompt = "Answer the question based only on the following context from a regulatory document:\n\n" +
	"Context:\n%s\n\nQuestion: %s\n\nAnswer:"

// Loader turns a document path into passages.
type Loader func(ctx context.Context, path string) ([]vectorstore.Document, error)

type Synthesizer struct {
	store vectorstore.Store
	llm   llmclient.LLMClient
	load  Loader
	allK  int
	log   hclog.Logger
}

type Option func(*Synthesizer)

func WithLoader(l Loader) Option       { return func(s *Synthesizer) { s.load = l } }
func WithAllK(k int) Option            { return func(s *Synthesizer) { s.allK = k } }
func WithLogger(l hclog.Logger) Option { return func(s *Synthesizer) { s.log = l.Named("brief") } }

func New(store vectorstore.Store, cli llmclient.LLMClient, opts ...Option) *Synthesizer {
	s := &Synthesizer{store: store, llm: cli, load: document.LoadPDF, allK: DefaultAllK, log: hclog.NewNullLogger()}
	for _, o := range opts {
		o(s)
	}
	if s.allK <= 0 {
		s.allK = DefaultAllK
	}
	return s
}

// Result is a brief plus how its context was assembled.
type Result struct {
	Text string `json:"text"`

	// Sources lists the distinct passage sources used as context.
	Sources []string `json:"sources"`

	// Fallback is set when no passage matched the requested document and
	// global results were used instead.
	Fallback bool `json:"fallback,omitempty"`

	Ingested vectorstore.AddStats `json:"ingested"`
}

// Ingest loads and indexes a document. Passages already present are
// skipped.
func (s *Synthesizer) Ingest(ctx context.Context, path string) (vectorstore.AddStats, error) {
	docs, err := s.load(ctx, path)
	if err != nil {
		return vectorstore.AddStats{}, err
	}
	st, err := s.store.Add(ctx, docs)
	if err != nil {
		return st, err
	}
	s.log.Info("document ingested", "path", path, "added", st.Added, "duplicates", st.Duplicates)
	return st, nil
}

// Analyze ingests documentPath (if given) and answers question over it.
func (s *Synthesizer) Analyze(ctx context.Context, documentPath, question string, scope Scope) (string, error) {
	res, err := s.AnalyzeDetailed(ctx, documentPath, question, scope)
	return res.Text, err
}

func (s *Synthesizer) AnalyzeDetailed(ctx context.Context, documentPath, question string, scope Scope) (Result, error) {
	var res Result
	if strings.TrimSpace(question) == "" {
		question = DefaultQuestion
	}
	if documentPath != "" {
		st, err := s.Ingest(ctx, documentPath)
		if err != nil {
			return res, err
		}
		res.Ingested = st
	}

	var passages []vectorstore.Match
	switch scope {
	case ScopeAllDocuments:
		ms, err := s.store.Search(ctx, question, s.allK, vectorstore.Filter{})
		if err != nil {
			return res, err
		}
		passages = ms
	default:
		ms, err := s.store.Search(ctx, question, scopedCandidates, vectorstore.Filter{})
		if err != nil {
			return res, err
		}
		var base string
		if documentPath != "" {
			base = filepath.Base(documentPath)
		}
		for _, m := range ms {
			if base != "" && strings.HasSuffix(m.Source(), base) {
				passages = append(passages, m)
			}
		}
		if len(passages) == 0 {
			res.Fallback = true
			s.log.Warn("no passages matched document, using global results", "document", base)
			passages = ms
		}
		if len(passages) > contextPassages {
			passages = passages[:contextPassages]
		}
	}

	text, err := s.answer(ctx, question, passages)
	if err != nil {
		return res, err
	}
	res.Text = text
	res.Sources = distinctSources(passages)
	return res, nil
}

func (s *Synthesizer) answer(ctx context.Context, question string, passages []vectorstore.Match) (string, error) {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, p.Content)
	}
	prompt := fmt.Sprintf(answerPrompt, strings.Join(parts, "\n\n"), question)
	return s.llm.GenerateText(llm.WithPhase(ctx, "brief"), prompt)
}

// QueryAllResult is the answer to a question over every ingested document.
type QueryAllResult struct {
	Answer            string         `json:"answer"`
	Sources           []string       `json:"sources"`
	ChunkDistribution map[string]int `json:"chunk_distribution"`
}

// QueryAll searches across all documents with depth k (DefaultAllK when 0).
func (s *Synthesizer) QueryAll(ctx context.Context, question string, k int) (QueryAllResult, error) {
	if k <= 0 {
		k = s.allK
	}
	ms, err := s.store.Search(ctx, question, k, vectorstore.Filter{})
	if err != nil {
		return QueryAllResult{}, err
	}
	text, err := s.answer(ctx, question, ms)
	if err != nil {
		return QueryAllResult{}, err
	}
	dist := make(map[string]int)
	for _, m := range ms {
		dist[filepath.Base(m.Source())]++
	}
	return QueryAllResult{Answer: text, Sources: distinctSources(ms), ChunkDistribution: dist}, nil
}

// ChunkCount reports how many passages the store holds.
func (s *Synthesizer) ChunkCount(ctx context.Context) (int, error) { return s.store.Count(ctx) }

func distinctSources(ms []vectorstore.Match) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range ms {
		src := m.Source()
		if _, ok := seen[src]; ok || src == "" {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}
