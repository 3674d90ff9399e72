package types

import (
	"sort"
	"strconv"
	"strings"
)

// Chunk is a fixed-size slice of source lines. Lines are 1-based and inclusive.
type Chunk struct {
	Content   string `json:"content"`
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Violation is one model-reported conflict between code and a rule.
// Line is the first line of the chunk the violation was found in, not
// necessarily the offending line itself.
type Violation struct {
	File          string `json:"file" validate:"required"`
	Line          int    `json:"line" validate:"gte=1"`
	ViolatingCode string `json:"violating_code"`
	Explanation   string `json:"explanation" validate:"required"`
	RuleViolated  string `json:"rule_violated"`
}

// Key identifies a violation for de-duplication across passes.
func (v Violation) Key() string {
	return v.File + "\x00" + strconv.Itoa(v.Line) + "\x00" + strings.TrimSpace(v.RuleViolated)
}

// GuidelinePatternSet maps a guideline label to searchable pattern descriptions.
type GuidelinePatternSet map[string][]string

// Labels returns guideline labels in sorted order.
func (g GuidelinePatternSet) Labels() []string {
	out := make([]string, 0, len(g))
	for k := range g {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Patterns flattens all patterns in label order, dropping blanks and repeats.
func (g GuidelinePatternSet) Patterns() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, label := range g.Labels() {
		for _, p := range g[label] {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of non-blank patterns across all guidelines.
func (g GuidelinePatternSet) Len() int { return len(g.Patterns()) }

// CandidateFileSet is a set of repository-relative, slash-separated paths.
type CandidateFileSet map[string]struct{}

func NewCandidateFileSet(paths ...string) CandidateFileSet {
	s := make(CandidateFileSet, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func (s CandidateFileSet) Add(path string) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	s[path] = struct{}{}
}

func (s CandidateFileSet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

func (s CandidateFileSet) Len() int { return len(s) }

// Difference returns the paths in s that are not in other.
func (s CandidateFileSet) Difference(other CandidateFileSet) CandidateFileSet {
	out := make(CandidateFileSet)
	for p := range s {
		if !other.Has(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

func (s CandidateFileSet) Union(other CandidateFileSet) CandidateFileSet {
	out := make(CandidateFileSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Sorted returns the paths in lexical order.
func (s CandidateFileSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// AuditMode names how a run selected the files it scanned.
type AuditMode string

const (
	ModeHybrid     AuditMode = "hybrid"
	ModeExhaustive AuditMode = "exhaustive"
)

// ScanStatistics summarises the two discovery/scan passes.
type ScanStatistics struct {
	Pass1Files      int `json:"pass1_files"`
	Pass1Violations int `json:"pass1_violations"`
	Pass2Files      int `json:"pass2_files"`
	Pass2Violations int `json:"pass2_violations"`
	ScannedFiles    int `json:"scanned_files"`
	ChunksScanned   int `json:"chunks_scanned"`
	ChunksFailed    int `json:"chunks_failed"`
	Dropped         int `json:"violations_dropped"`
	Duplicates      int `json:"duplicates_removed"`
}

// StageNote records what a pipeline stage did, including degradations.
type StageNote struct {
	Stage    string `json:"stage"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
}

// AuditResult is the final output of one audit run.
type AuditResult struct {
	Repository      string         `json:"repository"`
	Mode            AuditMode      `json:"mode"`
	TotalViolations int            `json:"total_violations"`
	Violations      []Violation    `json:"violations"`
	Statistics      ScanStatistics `json:"scan_statistics"`
	Stages          []StageNote    `json:"stages,omitempty"`
	Summary         string         `json:"summary,omitempty"`
}

// Degraded reports whether any stage fell back or failed.
func (r AuditResult) Degraded() bool {
	for _, s := range r.Stages {
		if s.Degraded {
			return true
		}
	}
	return false
}
