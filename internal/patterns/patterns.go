// Package patterns turns a technical brief into searchable descriptions of
// code that would violate it.
package patterns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"

	"guardian/internal/llm"
	llmclient "guardian/internal/llmClient"
	"guardian/internal/types"
)

var ErrPatternGenerationFailed = errors.New("pattern generation failed")

const DefaultRefineCap = 10

const generatePrompt = `
You are a senior software architect specializing in code compliance. Analyze the following compliance guidelines and for each one, generate a list of concrete, problematic code patterns that would indicate a potential violation. These patterns should be searchable within a codebase.

Guidelines:
---
%s
---

Respond ONLY with a JSON object where each key is a summary of the guideline and the value is a list of searchable code pattern descriptions.

Example format:
{
  "Configurable UI/Data": [
    "Hardcoded string literals inside JSX tags (e.g., <div>Hello</div>, <button>Submit</button>)",
    "Hardcoded strings in 'placeholder', 'alt', or 'title' attributes",
    "File paths or URLs as static strings in the code"
  ],
  "Configurable Business Rules": [
    "Use of 'magic numbers' or hardcoded numerical constants in business logic (e.g., if (price > 100.00))",
    "Hardcoded API endpoint URLs in fetch, axios, or other HTTP client calls"
  ],
  "Stateless Design": [
    "Imports of client-side state management libraries like 'jotai', 'redux', 'zustand'",
    "Use of 'useState' or 'useReducer' hooks in React components"
  ]
}
`

const extensionsPrompt = "Analyze the following compliance brief and list the file extensions that are most likely to contain relevant code. " +
	"Respond ONLY with a JSON array of file extensions (e.g., [\".js\", \".jsx\", \".py\"]). Brief:\n---\n%s\n---"

const refinePrompt = "Based on these violations, generate new, specific searchable code patterns. " +
	"Respond with a JSON object with a \"refined_patterns\" list. Violations:\n---\n%s\n---"

type Generator struct {
	llm       llmclient.LLMClient
	refineCap int
	log       hclog.Logger
	validate  *validator.Validate
}

func New(cli llmclient.LLMClient, refineCap int, logger hclog.Logger) *Generator {
	if refineCap <= 0 {
		refineCap = DefaultRefineCap
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Generator{llm: cli, refineCap: refineCap, log: logger.Named("patterns"), validate: validator.New()}
}

type guideline struct {
	Label    string   `validate:"required"`
	Patterns []string `validate:"min=1,dive,required"`
}

// Generate makes one model call. An empty, unparseable or patternless
// reply is reported as ErrPatternGenerationFailed.
func (g *Generator) Generate(ctx context.Context, brief string) (types.GuidelinePatternSet, error) {
	reply, err := g.llm.GenerateText(llm.WithPhase(ctx, "patterns"), fmt.Sprintf(generatePrompt, brief))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPatternGenerationFailed, err)
	}
	if strings.TrimSpace(reply) == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrPatternGenerationFailed)
	}
	var raw map[string]any
	if err := llm.DecodeReply(reply, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPatternGenerationFailed, err)
	}

	out := make(types.GuidelinePatternSet)
	labels := make([]string, 0, len(raw))
	for k := range raw {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	for _, label := range labels {
		gl := guideline{Label: strings.TrimSpace(label), Patterns: coerceList(raw[label])}
		if err := g.validate.Struct(gl); err != nil {
			g.log.Debug("dropping guideline", "label", label, "error", err)
			continue
		}
		out[gl.Label] = append(out[gl.Label], gl.Patterns...)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("%w: no usable patterns", ErrPatternGenerationFailed)
	}
	return out, nil
}

// Extensions asks which file types are most likely relevant. The reply is
// sanitised: glob prefixes are stripped, a leading dot is enforced, and
// anything containing '/' is rejected.
func (g *Generator) Extensions(ctx context.Context, brief string) ([]string, error) {
	reply, err := g.llm.GenerateText(llm.WithPhase(ctx, "extensions"), fmt.Sprintf(extensionsPrompt, brief))
	if err != nil {
		return nil, err
	}
	var raw []any
	if err := llm.DecodeReply(reply, &raw); err != nil {
		return nil, err
	}
	return SanitizeExtensions(raw), nil
}

func SanitizeExtensions(raw []any) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		s = strings.NewReplacer("**/", "", "*/", "", "*", "").Replace(strings.TrimSpace(s))
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		s = strings.ToLower(s)
		if len(s) <= 1 || strings.Contains(s, "/") {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Refine derives new patterns from at most the first refineCap
// violations. Object entries are coerced via "pattern" or "description".
func (g *Generator) Refine(ctx context.Context, violations []types.Violation) ([]string, error) {
	if len(violations) > g.refineCap {
		violations = violations[:g.refineCap]
	}
	body, err := json.MarshalIndent(violations, "", "  ")
	if err != nil {
		return nil, err
	}
	reply, err := g.llm.GenerateText(llm.WithPhase(ctx, "refine"), fmt.Sprintf(refinePrompt, body))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		RefinedPatterns []any `json:"refined_patterns"`
	}
	if err := llm.DecodeReply(reply, &parsed); err != nil {
		return nil, err
	}
	return coerceList(parsed.RefinedPatterns), nil
}

// coerceList accepts a list or a single value and returns non-blank strings.
func coerceList(v any) []string {
	var items []any
	switch x := v.(type) {
	case []any:
		items = x
	case nil:
		return nil
	default:
		items = []any{x}
	}
	var out []string
	for _, it := range items {
		s := coerceOne(it)
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func coerceOne(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]any:
		for _, k := range []string{"pattern", "description"} {
			if s, ok := x[k].(string); ok && strings.TrimSpace(s) != "" {
				return s
			}
		}
		b, _ := json.Marshal(x)
		return string(b)
	case nil:
		return ""
	case []any:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
