// Package hybrid runs the two-pass compliance audit: generate patterns,
// discover and scan candidate files, refine patterns from the findings,
// then discover and scan only the files the first pass missed.
package hybrid

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"guardian/internal/auditor"
	"guardian/internal/discover"
	"guardian/internal/embed"
	"guardian/internal/repo"
	"guardian/internal/scan"
	"guardian/internal/types"
)

type Cloner interface {
	Clone(ctx context.Context, raw string) (*repo.Checkout, error)
}

type PatternSource interface {
	Generate(ctx context.Context, brief string) (types.GuidelinePatternSet, error)
	Extensions(ctx context.Context, brief string) ([]string, error)
	Refine(ctx context.Context, violations []types.Violation) ([]string, error)
}

type Scanner interface {
	ScanFiles(ctx context.Context, root string, files []string, rules string, progress auditor.ProgressFunc) (auditor.Result, error)
}

type Discoverer interface {
	Index(ctx context.Context, root string, files []string) (discover.IndexStats, error)
	SetBoost(exts []string)
	Discover(ctx context.Context, patterns []string) (types.CandidateFileSet, error)
	Close() error
}

// DiscovererFactory builds a fresh per-repository discoverer.
type DiscovererFactory func() Discoverer

// NewDiscovererFactory returns a factory over discover.New.
func NewDiscovererFactory(emb embed.Embedder, topK int, logger hclog.Logger) DiscovererFactory {
	return func() Discoverer { return discover.New(emb, topK, logger) }
}

type Auditor struct {
	// ScanOptions selects which repository files are considered at all.
	ScanOptions scan.Options

	cloner       Cloner
	patterns     PatternSource
	scanner      Scanner
	newDiscovery DiscovererFactory
	log          hclog.Logger
}

func New(cloner Cloner, patterns PatternSource, scanner Scanner, newDiscovery DiscovererFactory, logger hclog.Logger) *Auditor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Auditor{
		cloner:       cloner,
		patterns:     patterns,
		scanner:      scanner,
		newDiscovery: newDiscovery,
		log:          logger.Named("hybrid"),
	}
}

// Options tune a single run.
type Options struct {
	Mode     types.AuditMode
	Progress func(event string)
}

// Audit runs the hybrid audit of repositoryURL against brief.
func (a *Auditor) Audit(ctx context.Context, repositoryURL, brief string) (types.AuditResult, error) {
	return a.AuditWithOptions(ctx, repositoryURL, brief, Options{Mode: types.ModeHybrid})
}

func (a *Auditor) AuditWithOptions(ctx context.Context, repositoryURL, brief string, opts Options) (types.AuditResult, error) {
	r := &run{Auditor: a, url: repositoryURL, brief: brief, progress: opts.Progress}
	if r.progress == nil {
		r.progress = func(string) {}
	}

	r.progress(EventCloning)
	co, err := a.cloner.Clone(ctx, repositoryURL)
	if err != nil {
		return types.AuditResult{}, err
	}
	defer func() {
		if err := co.Cleanup(); err != nil {
			a.log.Warn("failed to remove checkout", "dir", co.Dir, "error", err)
		}
	}()
	r.root = co.Dir

	files, err := scan.Files(ctx, co.Dir, a.ScanOptions)
	if err != nil {
		return types.AuditResult{}, fmt.Errorf("list files: %w", err)
	}
	r.files = files
	r.note(StateInit, fmt.Sprintf("%d relevant files in %s", len(files), co.Name), false)

	var res types.AuditResult
	if opts.Mode == types.ModeExhaustive {
		res, err = r.exhaustive(ctx)
	} else {
		res, err = r.hybrid(ctx)
	}
	if err != nil {
		return types.AuditResult{}, err
	}
	r.progress(EventComplete)
	return res, nil
}

// run holds the state of one audit.
type run struct {
	*Auditor
	url      string
	brief    string
	root     string
	files    []string
	progress func(string)
	stages   []types.StageNote
	stats    types.ScanStatistics
}

func (r *run) note(s State, msg string, degraded bool) {
	r.stages = append(r.stages, types.StageNote{Stage: string(s), Message: msg, Degraded: degraded})
	if degraded {
		r.log.Warn("stage degraded", "stage", s, "message", msg)
	} else {
		r.log.Debug("stage", "stage", s, "message", msg)
	}
}

func (r *run) scanFiles(ctx context.Context, files []string) (auditor.Result, error) {
	if len(files) == 0 {
		return auditor.Result{}, nil
	}
	r.progress(EventScanning)
	res, err := r.scanner.ScanFiles(ctx, r.root, files, r.brief, auditor.ProgressFunc(r.progress))
	if err != nil {
		return res, err
	}
	r.stats.ScannedFiles += res.Files
	r.stats.ChunksScanned += res.Chunks
	r.stats.ChunksFailed += res.FailedChunks
	r.stats.Dropped += res.DroppedViolations
	return res, nil
}

func (r *run) exhaustive(ctx context.Context) (types.AuditResult, error) {
	res, err := r.scanFiles(ctx, r.files)
	if err != nil {
		return types.AuditResult{}, err
	}
	r.stats.Pass1Files = len(r.files)
	r.stats.Pass1Violations = len(res.Violations)
	r.noteChunkFailures(StatePass1Scanned, res)
	r.note(StateAggregated, "exhaustive audit complete", false)
	return Aggregate(r.url, types.ModeExhaustive, res.Violations, nil, r.stats, r.stages), nil
}

func (r *run) noteChunkFailures(s State, res auditor.Result) {
	if res.FailedChunks > 0 || res.FailedFiles > 0 {
		r.note(s, fmt.Sprintf("%d chunks and %d files could not be analysed", res.FailedChunks, res.FailedFiles), true)
	}
	if res.DroppedViolations > 0 {
		r.note(s, fmt.Sprintf("%d reported violations were malformed and discarded", res.DroppedViolations), true)
	}
}

func (r *run) hybrid(ctx context.Context) (types.AuditResult, error) {
	exts, err := r.patterns.Extensions(ctx, r.brief)
	if err != nil {
		r.note(StateInit, fmt.Sprintf("could not determine file types, proceeding without prioritisation: %v", err), true)
	}

	set, err := r.patterns.Generate(ctx, r.brief)
	if err != nil {
		if ctx.Err() != nil {
			return types.AuditResult{}, ctx.Err()
		}
		r.note(StatePatternsGenerated, fmt.Sprintf("pattern generation failed, falling back to exhaustive audit: %v", err), true)
		return r.exhaustive(ctx)
	}
	r.note(StatePatternsGenerated, fmt.Sprintf("%d guidelines, %d patterns", len(set), set.Len()), false)

	disc := r.newDiscovery()
	defer disc.Close()
	if _, err := disc.Index(ctx, r.root, r.files); err != nil {
		return types.AuditResult{}, fmt.Errorf("index repository: %w", err)
	}
	disc.SetBoost(exts)

	pass1 := types.NewCandidateFileSet()
	for _, label := range set.Labels() {
		found, err := disc.Discover(ctx, set[label])
		if err != nil {
			if ctx.Err() != nil {
				return types.AuditResult{}, ctx.Err()
			}
			r.note(StatePass1Discovered, fmt.Sprintf("discovery for %q failed: %v", label, err), true)
		}
		pass1 = pass1.Union(found)
	}
	r.stats.Pass1Files = pass1.Len()
	r.note(StatePass1Discovered, fmt.Sprintf("%d candidate files", pass1.Len()), false)

	res1, err := r.scanFiles(ctx, pass1.Sorted())
	if err != nil {
		return types.AuditResult{}, err
	}
	r.stats.Pass1Violations = len(res1.Violations)
	r.noteChunkFailures(StatePass1Scanned, res1)
	r.note(StatePass1Scanned, fmt.Sprintf("%d violations", len(res1.Violations)), false)

	if len(res1.Violations) == 0 {
		r.note(StateAggregated, "no findings in pass 1; refinement skipped", false)
		return Aggregate(r.url, types.ModeHybrid, res1.Violations, nil, r.stats, r.stages), nil
	}

	refined, err := r.patterns.Refine(ctx, res1.Violations)
	if err != nil {
		if ctx.Err() != nil {
			return types.AuditResult{}, ctx.Err()
		}
		r.note(StatePatternsRefined, fmt.Sprintf("could not refine patterns, keeping pass 1 results: %v", err), true)
		r.note(StateAggregated, "pass 2 skipped", false)
		return Aggregate(r.url, types.ModeHybrid, res1.Violations, nil, r.stats, r.stages), nil
	}
	if len(refined) == 0 {
		r.note(StatePatternsRefined, "model returned no refined patterns; pass 2 skipped", true)
		r.note(StateAggregated, "pass 2 skipped", false)
		return Aggregate(r.url, types.ModeHybrid, res1.Violations, nil, r.stats, r.stages), nil
	}
	r.note(StatePatternsRefined, fmt.Sprintf("%d refined patterns", len(refined)), false)

	found, err := disc.Discover(ctx, refined)
	if err != nil {
		if ctx.Err() != nil {
			return types.AuditResult{}, ctx.Err()
		}
		r.note(StatePass2Discovered, fmt.Sprintf("pass 2 discovery failed: %v", err), true)
	}
	newly := found.Difference(pass1)
	r.stats.Pass2Files = newly.Len()
	r.note(StatePass2Discovered, fmt.Sprintf("%d new files (%d already scanned)", newly.Len(), found.Len()-newly.Len()), false)

	res2, err := r.scanFiles(ctx, newly.Sorted())
	if err != nil {
		return types.AuditResult{}, err
	}
	r.stats.Pass2Violations = len(res2.Violations)
	r.noteChunkFailures(StatePass2Scanned, res2)
	r.note(StatePass2Scanned, fmt.Sprintf("%d violations", len(res2.Violations)), false)
	r.note(StateAggregated, "hybrid audit complete", false)
	return Aggregate(r.url, types.ModeHybrid, res1.Violations, res2.Violations, r.stats, r.stages), nil
}
