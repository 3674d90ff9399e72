// Package qa answers free-form questions about one indexed repository.
package qa

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"guardian/internal/document"
	"guardian/internal/embed"
	"guardian/internal/llm"
	llmclient "guardian/internal/llmClient"
	"guardian/internal/scan"
	"guardian/internal/vectorstore"
)

// RetrieveK is the number of passages used as context for one answer.
const RetrieveK = 5

// IndexExtensions also covers documentation and config files, which the
// auditor ignores.
var IndexExtensions = []string{
	".py", ".js", ".ts", ".jsx", ".tsx",
	".java", ".cpp", ".c", ".h", ".cs",
	".md", ".txt", ".rst", ".html", ".css",
	".json", ".yaml", ".yml", ".toml", ".xml",
}

// InsightQuestions are asked by Insights.
var InsightQuestions = []string{
	"What is the main purpose of this repository?",
	"What programming languages and frameworks are used?",
	"What are the key dependencies?",
	"Is there documentation? Where is it located?",
	"Are there any security considerations mentioned?",
}

const answerPrompt = `Answer the question based only on the following context:

%s

Question: %s

Provide a detailed answer with specific examples from the code. If you reference code, include the file name.`

const compliancePrompt = "Does this repository comply with the following requirement: %s? Please provide specific evidence from the code or documentation."

type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Sources []string  `json:"sources,omitempty"`
	At      time.Time `json:"timestamp"`
}

type IndexStats struct {
	Documents int `json:"documents_count"`
	Chunks    int `json:"chunks_count"`
}

type ComplianceCheck struct {
	Guideline  string   `json:"guideline"`
	Assessment string   `json:"assessment"`
	Evidence   []string `json:"evidence_sources"`
}

// Session owns the index of one repository. Questions are serialised.
type Session struct {
	ID        string
	RepoURL   string
	CreatedAt time.Time

	mu      sync.Mutex
	llm     llmclient.LLMClient
	store   *vectorstore.MemoryStore
	stats   IndexStats
	history []Message
	log     hclog.Logger
}

func NewSession(id, repoURL string, cli llmclient.LLMClient, emb embed.Embedder, logger hclog.Logger) *Session {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Session{
		ID:        id,
		RepoURL:   repoURL,
		CreatedAt: time.Now(),
		llm:       cli,
		store:     vectorstore.NewMemory(emb),
		log:       logger.Named("qa").With("session", id),
	}
}

// Index reads every indexable file under root. A repository without any
// indexable file is an error.
func (s *Session) Index(ctx context.Context, root string) (IndexStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := scan.Files(ctx, root, scan.Options{Extensions: IndexExtensions})
	if err != nil {
		return s.stats, err
	}
	for _, rel := range files {
		text, err := scan.ReadRepoText(root, rel)
		if err != nil {
			s.log.Warn("could not read file", "file", rel, "error", err)
			continue
		}
		docs, err := document.SplitText(ctx, text, map[string]string{
			vectorstore.MetaSource:    rel,
			vectorstore.MetaExtension: strings.ToLower(path.Ext(rel)),
		})
		if err != nil || len(docs) == 0 {
			continue
		}
		for i := range docs {
			docs[i].ID = vectorstore.SourceID(rel, docs[i].Content)
		}
		added, err := s.store.Add(ctx, docs)
		if err != nil {
			return s.stats, fmt.Errorf("index %s: %w", rel, err)
		}
		s.stats.Documents++
		s.stats.Chunks += added.Added
	}
	if s.stats.Documents == 0 {
		return s.stats, fmt.Errorf("no documents found to index in %s", s.RepoURL)
	}
	s.log.Info("repository indexed", "documents", s.stats.Documents, "chunks", s.stats.Chunks)
	return s.stats, nil
}

func (s *Session) Stats() IndexStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Ask answers question from the RetrieveK most similar passages and
// records the exchange in the history.
func (s *Session) Ask(ctx context.Context, question string) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ask(ctx, question, true)
}

func (s *Session) ask(ctx context.Context, question string, record bool) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question is empty")
	}
	matches, err := s.store.Search(ctx, question, RetrieveK, vectorstore.Filter{})
	if err != nil {
		return Answer{}, err
	}
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "File: %s\n%s", m.Source(), m.Content)
	}
	reply, err := s.llm.GenerateText(llm.WithPhase(ctx, "qa"), fmt.Sprintf(answerPrompt, b.String(), question))
	if err != nil {
		return Answer{}, fmt.Errorf("answer question: %w", err)
	}
	ans := Answer{Answer: strings.TrimSpace(reply), Sources: sources(matches)}
	if record {
		now := time.Now()
		s.history = append(s.history,
			Message{Role: "user", Content: question, At: now},
			Message{Role: "assistant", Content: ans.Answer, Sources: ans.Sources, At: now},
		)
	}
	return ans, nil
}

func (s *Session) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.history...)
}

// Insights asks the InsightQuestions in order. A failed question records
// its error text instead of aborting.
func (s *Session) Insights(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(InsightQuestions))
	for _, q := range InsightQuestions {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		ans, err := s.ask(ctx, q, false)
		if err != nil {
			out[q] = "No answer available: " + err.Error()
			continue
		}
		out[q] = ans.Answer
	}
	return out, nil
}

// CheckCompliance asks, per guideline, whether the repository complies.
func (s *Session) CheckCompliance(ctx context.Context, guidelines []string) ([]ComplianceCheck, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ComplianceCheck, 0, len(guidelines))
	for _, g := range guidelines {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		ans, err := s.ask(ctx, fmt.Sprintf(compliancePrompt, g), false)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out = append(out, ComplianceCheck{Guideline: g, Assessment: "Unable to assess: " + err.Error()})
			continue
		}
		out = append(out, ComplianceCheck{Guideline: g, Assessment: ans.Answer, Evidence: ans.Sources})
	}
	return out, nil
}

func (s *Session) Close() error { return s.store.Close() }

// sources lists distinct passage sources in rank order.
func sources(ms []vectorstore.Match) []string {
	seen := make(map[string]struct{}, len(ms))
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		src := m.Source()
		if src == "" {
			src = "unknown"
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	return out
}
