// Package app constructs every collaborator once from a Config and hands
// them to the CLI and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"guardian/internal/api"
	"guardian/internal/artifact"
	"guardian/internal/auditor"
	"guardian/internal/brief"
	"guardian/internal/config"
	"guardian/internal/embed"
	"guardian/internal/hybrid"
	"guardian/internal/llm"
	llmclient "guardian/internal/llmClient"
	"guardian/internal/patterns"
	"guardian/internal/qa"
	"guardian/internal/repo"
	"guardian/internal/vectorstore"
)

const (
	embedCacheSize   = 4096
	storeOpenRetries = 5
	storeOpenBackoff = 500 * time.Millisecond
	pgCollection     = "legal"
)

type App struct {
	Config *config.Config
	Log    hclog.Logger

	// Chat answers briefs and Q&A; Audit scores chunks and generates patterns.
	Chat  llmclient.LLMClient
	Audit llmclient.LLMClient

	Embedder embed.Embedder
	Cloner   *repo.Cloner
	Patterns *patterns.Generator
	Auditor  *hybrid.Auditor
	QA       *qa.Manager
	Exporter *artifact.Exporter

	storeMu sync.Mutex
	store   vectorstore.Store
	brief   *brief.Synthesizer
}

// New validates cfg and wires the components. The PDF vector store is
// opened on first use so that commands which never touch it do not
// contend for its lock.
func New(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &App{Config: cfg, Log: logger}

	chat, audit, emb, err := a.models(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := embed.NewCached(emb, embedCacheSize)
	if err != nil {
		return nil, err
	}
	a.Chat, a.Audit, a.Embedder = chat, audit, cached

	a.Cloner = repo.NewCloner(logger)
	a.Cloner.AllowLocal = cfg.AllowLocalRepos
	a.Patterns = patterns.New(a.Audit, cfg.RefineCap, logger)
	scanner := auditor.New(a.Audit,
		auditor.WithChunkLines(cfg.ChunkLines),
		auditor.WithWorkers(cfg.Workers),
		auditor.WithLogger(logger),
	)
	a.Auditor = hybrid.New(a.Cloner, a.Patterns, scanner,
		hybrid.NewDiscovererFactory(a.Embedder, cfg.DiscoverTopK, logger), logger)
	a.QA = qa.NewManager(a.Cloner, a.Chat, a.Embedder, cfg.MaxSessions, cfg.SessionTTL, logger)

	exp, err := a.exporter()
	if err != nil {
		return nil, err
	}
	a.Exporter = exp
	return a, nil
}

func (a *App) models(ctx context.Context) (chat, audit llmclient.LLMClient, emb embed.Embedder, err error) {
	cfg := a.Config
	mws := []llm.Middleware{
		llm.WithLogging(a.Log),
		llm.Retry(cfg.LLMRetries, 0),
		llm.RateLimit(cfg.LLMRPS, cfg.LLMBurst),
	}
	if cfg.Offline {
		a.Log.Warn("offline mode: using canned model replies and hash embeddings")
		fake := llm.NewFakeClient("[]")
		return llm.Wrap(fake, mws...), llm.Wrap(fake, mws...), embed.NewHash(1<<12), nil
	}

	chatCli, err := llmclient.NewGeminiClient(ctx, cfg.APIKey, cfg.ChatModel, cfg.Temperature)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("chat model: %w", err)
	}
	auditCli, err := llmclient.NewGeminiClient(ctx, cfg.APIKey, cfg.AuditModel, cfg.Temperature)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("audit model: %w", err)
	}
	emb, err = embed.NewGemini(chatCli.Genai(), cfg.EmbedModel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("embedding model: %w", err)
	}
	return llm.Wrap(chatCli, mws...), llm.Wrap(auditCli, mws...), emb, nil
}

func (a *App) exporter() (*artifact.Exporter, error) {
	cfg := a.Config
	switch {
	case cfg.Artifact.Enabled:
		s3, err := artifact.NewS3Store(cfg.Artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize artifact s3 store: %w", err)
		}
		a.Log.Info("artifact store", "kind", "s3", "bucket", cfg.Artifact.Bucket, "endpoint", cfg.Artifact.Endpoint)
		return artifact.NewExporter(s3, a.Log), nil
	case cfg.ReportDir != "":
		fs, err := artifact.NewFileStore(cfg.ReportDir)
		if err != nil {
			return nil, err
		}
		a.Log.Info("artifact store", "kind", "file", "dir", cfg.ReportDir)
		return artifact.NewExporter(fs, a.Log), nil
	default:
		return nil, nil
	}
}

// Store opens the PDF vector store: Postgres when a DSN is configured,
// otherwise the on-disk store in VectorDir. Only a successful open is
// kept; after a failure the next call tries again.
func (a *App) Store(ctx context.Context) (vectorstore.Store, error) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	if a.store != nil {
		return a.store, nil
	}

	var st vectorstore.Store
	if dsn := a.Config.VectorPGDSN; dsn != "" {
		pg, err := vectorstore.OpenPostgres(dsn, pgCollection, a.Embedder)
		if err != nil {
			return nil, err
		}
		st = pg
		a.Log.Info("vector store", "kind", "postgres", "collection", pgCollection)
	} else {
		disk, err := vectorstore.OpenDiskWithRetry(ctx, a.Config.VectorDir, a.Embedder, storeOpenRetries, storeOpenBackoff)
		if err != nil {
			return nil, err
		}
		st = disk
		a.Log.Info("vector store", "kind", "disk", "dir", a.Config.VectorDir)
	}
	a.store = st
	a.brief = brief.New(st, a.Chat, brief.WithLogger(a.Log))
	return a.store, nil
}

func (a *App) Brief(ctx context.Context) (*brief.Synthesizer, error) {
	if _, err := a.Store(ctx); err != nil {
		return nil, err
	}
	a.storeMu.Lock()
	defer a.storeMu.Unlock()
	return a.brief, nil
}

// ClearDatabase empties the PDF vector store. The disk store is removed
// with retries and renamed aside as a last resort; the returned path is
// the backup location in that case.
func (a *App) ClearDatabase(ctx context.Context) (string, error) {
	if dsn := a.Config.VectorPGDSN; dsn != "" {
		pg, err := vectorstore.OpenPostgres(dsn, pgCollection, a.Embedder)
		if err != nil {
			return "", err
		}
		defer pg.Close()
		return "", pg.Clear(ctx)
	}
	return vectorstore.ResetDisk(a.Config.VectorDir, storeOpenRetries, storeOpenBackoff)
}

// lazyBrief defers opening the vector store to the first brief request.
type lazyBrief struct{ app *App }

func (l lazyBrief) AnalyzeDetailed(ctx context.Context, documentPath, question string, scope brief.Scope) (brief.Result, error) {
	b, err := l.app.Brief(ctx)
	if err != nil {
		return brief.Result{}, err
	}
	return b.AnalyzeDetailed(ctx, documentPath, question, scope)
}

func (l lazyBrief) QueryAll(ctx context.Context, question string, k int) (brief.QueryAllResult, error) {
	b, err := l.app.Brief(ctx)
	if err != nil {
		return brief.QueryAllResult{}, err
	}
	return b.QueryAll(ctx, question, k)
}

// Handler builds the HTTP API over the wired components.
func (a *App) Handler() http.Handler {
	d := api.Deps{
		Brief:            lazyBrief{app: a},
		Audit:            a.Auditor,
		QA:               a.QA,
		APIKeyConfigured: a.Config.APIKey != "",
		Logger:           a.Log,
		StreamTimeout:    a.Config.RequestTimeout,
	}
	if a.Exporter != nil {
		d.Exporter = a.Exporter
	}
	return api.NewRouter(api.NewHandler(d), api.RouterOptions{Timeout: a.Config.RequestTimeout})
}

func (a *App) Server() *api.Server {
	return api.NewServer(a.Config.Port, a.Handler(), a.Log)
}

// Close releases the vector store, Q&A sessions and model clients.
func (a *App) Close() error {
	var errs []error
	if a.QA != nil {
		a.QA.Close()
	}
	a.storeMu.Lock()
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	a.storeMu.Unlock()
	if a.Chat != nil {
		errs = append(errs, a.Chat.Close())
	}
	if a.Audit != nil && a.Audit != a.Chat {
		errs = append(errs, a.Audit.Close())
	}
	return errors.Join(errs...)
}
