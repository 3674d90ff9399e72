package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"guardian/internal/embed"
	llmclient "guardian/internal/llmClient"
	"guardian/internal/repo"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	DefaultMaxSessions = 32
	DefaultSessionTTL  = time.Hour
)

type Cloner interface {
	Clone(ctx context.Context, raw string) (*repo.Checkout, error)
}

// Manager keeps recently used sessions, evicting the least recently used
// one past the size limit and any session idle for longer than the TTL.
type Manager struct {
	cloner Cloner
	llm    llmclient.LLMClient
	emb    embed.Embedder
	log    hclog.Logger

	sessions *expirable.LRU[string, *Session]
	byRepo   sync.Map // repo URL -> session id
	initMu   sync.Mutex
}

func NewManager(cloner Cloner, cli llmclient.LLMClient, emb embed.Embedder, size int, ttl time.Duration, logger hclog.Logger) *Manager {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	m := &Manager{cloner: cloner, llm: cli, emb: emb, log: logger.Named("qa")}
	m.sessions = expirable.NewLRU[string, *Session](size, m.evicted, ttl)
	return m
}

func (m *Manager) evicted(id string, s *Session) {
	m.byRepo.CompareAndDelete(s.RepoURL, id)
	if err := s.Close(); err != nil {
		m.log.Debug("closing evicted session", "session", id, "error", err)
	}
	m.log.Debug("session evicted", "session", id, "repo", s.RepoURL)
}

// Init clones and indexes repoURL into a new session. The clone is removed
// once indexing finishes.
func (m *Manager) Init(ctx context.Context, repoURL string) (*Session, IndexStats, error) {
	repoURL = strings.TrimSpace(repoURL)
	if repoURL == "" {
		return nil, IndexStats{}, fmt.Errorf("repository url is required")
	}
	co, err := m.cloner.Clone(ctx, repoURL)
	if err != nil {
		return nil, IndexStats{}, err
	}
	defer func() {
		if err := co.Cleanup(); err != nil {
			m.log.Warn("failed to remove checkout", "dir", co.Dir, "error", err)
		}
	}()

	s := NewSession(uuid.NewString(), repoURL, m.llm, m.emb, m.log)
	stats, err := s.Index(ctx, co.Dir)
	if err != nil {
		_ = s.Close()
		return nil, stats, err
	}
	m.sessions.Add(s.ID, s)
	m.byRepo.Store(repoURL, s.ID)
	return s, stats, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Resolve finds a session by id or by repository URL, initialising one
// for an unknown URL.
func (m *Manager) Resolve(ctx context.Context, repoURLOrSessionID string) (*Session, error) {
	key := strings.TrimSpace(repoURLOrSessionID)
	if s, ok := m.sessions.Get(key); ok {
		return s, nil
	}
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if id, ok := m.byRepo.Load(key); ok {
		if s, ok := m.sessions.Get(id.(string)); ok {
			return s, nil
		}
	}
	if _, err := uuid.Parse(key); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	s, _, err := m.Init(ctx, key)
	return s, err
}

func (m *Manager) Ask(ctx context.Context, repoURLOrSessionID, question string) (Answer, error) {
	s, err := m.Resolve(ctx, repoURLOrSessionID)
	if err != nil {
		return Answer{}, err
	}
	return s.Ask(ctx, question)
}

func (m *Manager) History(id string) ([]Message, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.History(), nil
}

// Delete removes a session and reports whether it existed.
func (m *Manager) Delete(id string) bool {
	return m.sessions.Remove(strings.TrimSpace(id))
}

func (m *Manager) Count() int { return m.sessions.Len() }

// Close drops every session.
func (m *Manager) Close() { m.sessions.Purge() }
