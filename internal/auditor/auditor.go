// Package auditor asks the model, one line-chunk at a time, whether code
// violates the rules of a technical brief.
package auditor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"guardian/internal/llm"
	llmclient "guardian/internal/llmClient"
	"guardian/internal/scan"
	"guardian/internal/types"
)

const chunkPrompt = "You are an expert code auditor. Your task is to determine if the following code snippet violates any of the rules in the provided technical brief.\n\n" +
	"**TECHNICAL BRIEF:**\n%s\n\n" +
	"**CODE SNIPPET (File: %s, Lines %d-%d):**\n```%s\n%s\n```\n\n" +
	"---\n" +
	"Analyze the code snippet against the brief. If you find one or more violations, respond with a JSON list. " +
	"Each item in the list should be a dictionary with the keys: \"violating_code\", \"explanation\", and \"rule_violated\".\n\n" +
	"If there are no violations in this snippet, respond with an empty list: []\n\n" +
	"Your response must be ONLY the JSON list, nothing else.\n"

// ProgressFunc receives "analyzing:<file>" events. Calls are serialised.
type ProgressFunc func(event string)

type Auditor struct {
	llm        llmclient.LLMClient
	chunkLines int
	workers    int
	log        hclog.Logger
	validate   *validator.Validate
}

type Option func(*Auditor)

func WithChunkLines(n int) Option { return func(a *Auditor) { a.chunkLines = ClampChunkLines(n) } }
func WithWorkers(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.workers = n
		}
	}
}
func WithLogger(l hclog.Logger) Option { return func(a *Auditor) { a.log = l.Named("auditor") } }

func New(cli llmclient.LLMClient, opts ...Option) *Auditor {
	a := &Auditor{
		llm:        cli,
		chunkLines: ClampChunkLines(0),
		workers:    1,
		log:        hclog.NewNullLogger(),
		validate:   validator.New(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Result is what one scan over a list of files produced.
type Result struct {
	Violations   []types.Violation
	Files        int
	Chunks       int
	FailedChunks int
	FailedFiles  int

	// DroppedViolations counts reply entries rejected by validation.
	DroppedViolations int
}

type fileResult struct {
	violations []types.Violation
	chunks     int
	failed     int
	dropped    int
	readFailed bool
}

// ScanFiles audits files (repo-relative, slash separated) under root
// against rules. Per-chunk failures never abort the scan; only context
// cancellation does. Output order follows files, then chunk order.
func (a *Auditor) ScanFiles(ctx context.Context, root string, files []string, rules string, progress ProgressFunc) (Result, error) {
	var (
		results = make([]fileResult, len(files))
		mu      sync.Mutex
	)
	notify := func(ev string) {
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		progress(ev)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			notify("analyzing:" + f)
			results[i] = a.scanFile(gctx, root, f, rules)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out := Result{Files: len(files)}
	for _, r := range results {
		out.Violations = append(out.Violations, r.violations...)
		out.Chunks += r.chunks
		out.FailedChunks += r.failed
		out.DroppedViolations += r.dropped
		if r.readFailed {
			out.FailedFiles++
		}
	}
	return out, nil
}

func (a *Auditor) scanFile(ctx context.Context, root, rel, rules string) fileResult {
	text, err := scan.ReadRepoText(root, rel)
	if err != nil {
		a.log.Warn("skipping unreadable file", "file", rel, "error", err)
		return fileResult{readFailed: true}
	}
	var res fileResult
	for _, ch := range SplitLines(text, rel, a.chunkLines) {
		if ctx.Err() != nil {
			return res
		}
		res.chunks++
		vs, dropped, err := a.auditChunk(ctx, ch, rules)
		res.dropped += dropped
		if err != nil {
			res.failed++
			a.log.Warn("chunk audit failed", "file", rel, "start", ch.StartLine, "end", ch.EndLine, "error", err)
			continue
		}
		res.violations = append(res.violations, vs...)
	}
	return res
}

type rawViolation struct {
	ViolatingCode any `json:"violating_code"`
	Explanation   any `json:"explanation"`
	RuleViolated  any `json:"rule_violated"`
}

// AuditChunk makes one model call for ch. The returned violations carry
// the chunk's file and start line. Entries that fail validation are
// dropped; an unparseable reply is an error.
func (a *Auditor) AuditChunk(ctx context.Context, ch types.Chunk, rules string) ([]types.Violation, error) {
	vs, _, err := a.auditChunk(ctx, ch, rules)
	return vs, err
}

// auditChunk is AuditChunk plus the number of entries validation rejected.
func (a *Auditor) auditChunk(ctx context.Context, ch types.Chunk, rules string) ([]types.Violation, int, error) {
	if strings.TrimSpace(ch.Content) == "" {
		return nil, 0, nil
	}
	prompt := fmt.Sprintf(chunkPrompt, rules, ch.FilePath, ch.StartLine, ch.EndLine, scan.Language(ch.FilePath), ch.Content)
	reply, err := a.llm.GenerateText(llm.WithPhase(ctx, "audit"), prompt)
	if err != nil {
		return nil, 0, err
	}
	var raw []rawViolation
	if err := llm.DecodeReply(reply, &raw); err != nil {
		return nil, 0, err
	}
	dropped := 0
	out := make([]types.Violation, 0, len(raw))
	for _, r := range raw {
		v := types.Violation{
			File:          ch.FilePath,
			Line:          ch.StartLine,
			ViolatingCode: asText(r.ViolatingCode),
			Explanation:   asText(r.Explanation),
			RuleViolated:  asText(r.RuleViolated),
		}
		if err := a.validate.Struct(v); err != nil {
			a.log.Warn("dropping malformed violation", "file", ch.FilePath, "start", ch.StartLine, "error", err)
			dropped++
			continue
		}
		out = append(out, v)
	}
	return out, dropped, nil
}

func asText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}
