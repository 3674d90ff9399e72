package hybrid

import (
	"fmt"
	"strings"

	"guardian/internal/types"
)

const summaryTop = 10

// Aggregate concatenates pass-1 and pass-2 violations, removes repeats of
// the same (file, line, rule) and renders the text summary.
func Aggregate(repository string, mode types.AuditMode, pass1, pass2 []types.Violation, stats types.ScanStatistics, stages []types.StageNote) types.AuditResult {
	all := make([]types.Violation, 0, len(pass1)+len(pass2))
	seen := make(map[string]struct{}, len(pass1)+len(pass2))
	dups := 0
	for _, v := range append(append([]types.Violation(nil), pass1...), pass2...) {
		k := v.Key()
		if _, ok := seen[k]; ok {
			dups++
			continue
		}
		seen[k] = struct{}{}
		all = append(all, v)
	}
	stats.Duplicates = dups

	res := types.AuditResult{
		Repository:      repository,
		Mode:            mode,
		TotalViolations: len(all),
		Violations:      all,
		Statistics:      stats,
		Stages:          stages,
	}
	res.Summary = Summary(res)
	return res
}

// Summary renders a plain-text report listing the first ten violations.
func Summary(r types.AuditResult) string {
	var b strings.Builder
	st := r.Statistics
	if r.Mode == types.ModeExhaustive {
		b.WriteString("Exhaustive Audit Results:\n")
		fmt.Fprintf(&b, "- Repository: %s\n", r.Repository)
		fmt.Fprintf(&b, "- Scanned %d files (%d chunks).\n", st.ScannedFiles, st.ChunksScanned)
	} else {
		b.WriteString("Enhanced Hybrid Audit Results:\n")
		fmt.Fprintf(&b, "- Repository: %s\n", r.Repository)
		fmt.Fprintf(&b, "- Pass 1 (Pattern-based): Found %d files, resulting in %d violations.\n", st.Pass1Files, st.Pass1Violations)
		if st.Pass2Files > 0 {
			fmt.Fprintf(&b, "- Pass 2 (Refinement-based): Found %d new files, adding %d more violations.\n", st.Pass2Files, st.Pass2Violations)
		}
	}
	if st.Duplicates > 0 {
		fmt.Fprintf(&b, "- Duplicates removed: %d\n", st.Duplicates)
	}
	if st.ChunksFailed > 0 {
		fmt.Fprintf(&b, "- Chunks that could not be analysed: %d\n", st.ChunksFailed)
	}
	if st.Dropped > 0 {
		fmt.Fprintf(&b, "- Malformed violations discarded: %d\n", st.Dropped)
	}
	fmt.Fprintf(&b, "- Total violations found: %d\n\n", r.TotalViolations)

	for _, s := range r.Stages {
		if s.Degraded {
			fmt.Fprintf(&b, "! %s: %s\n", s.Stage, s.Message)
		}
	}
	if r.Degraded() {
		b.WriteString("\n")
	}

	if len(r.Violations) == 0 {
		if r.Degraded() {
			b.WriteString("No violations found, but some stages were degraded; the result may be incomplete.\n")
		} else {
			b.WriteString("No violations found in the detailed scan of relevant files.\n")
		}
		return b.String()
	}
	b.WriteString("Top violations found:\n")
	for i, v := range r.Violations {
		if i == summaryTop {
			break
		}
		fmt.Fprintf(&b, "%d. %s (line %d)\n   %s\n\n", i+1, v.File, v.Line, v.Explanation)
	}
	return b.String()
}
