// Package report renders an audit result as JSON, plain text or SARIF.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"guardian/internal/hybrid"
	"guardian/internal/types"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatSARIF Format = "sarif"
)

const (
	toolName = "guardian"
	toolURI  = "https://github.com/guardian-audit/guardian"
)

// ParseFormat accepts json, text (or txt) and sarif, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "text", "txt":
		return FormatText, nil
	case "sarif":
		return FormatSARIF, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// Ext is the file extension used when a report is saved.
func (f Format) Ext() string {
	switch f {
	case FormatText:
		return ".txt"
	case FormatSARIF:
		return ".sarif"
	default:
		return ".json"
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatSARIF:
		return "application/sarif+json"
	default:
		return "application/json"
	}
}

func Write(w io.Writer, f Format, res types.AuditResult) error {
	switch f {
	case FormatText:
		return WriteText(w, res)
	case FormatSARIF:
		return WriteSARIF(w, res)
	default:
		return WriteJSON(w, res)
	}
}

func WriteJSON(w io.Writer, res types.AuditResult) error {
	if res.Violations == nil {
		res.Violations = []types.Violation{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteText writes the summary followed by every violation, grouped by file.
func WriteText(w io.Writer, res types.AuditResult) error {
	summary := res.Summary
	if summary == "" {
		summary = hybrid.Summary(res)
	}
	var b strings.Builder
	b.WriteString(summary)
	if len(res.Violations) > 0 {
		b.WriteString("\nAll violations:\n")
		last := ""
		for _, v := range res.Violations {
			if v.File != last {
				fmt.Fprintf(&b, "\n#### %s\n", v.File)
				last = v.File
			}
			fmt.Fprintf(&b, "  line %d [%s]: %s\n", v.Line, ruleID(v), v.Explanation)
			if code := strings.TrimSpace(v.ViolatingCode); code != "" {
				fmt.Fprintf(&b, "    > %s\n", strings.ReplaceAll(code, "\n", "\n    > "))
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteSARIF emits one SARIF 2.1.0 run with a rule per distinct
// rule_violated value and a result per violation.
func WriteSARIF(w io.Writer, res types.AuditResult) error {
	rep, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}
	run := sarif.NewRunWithInformationURI(toolName, toolURI)
	for _, v := range res.Violations {
		id := ruleID(v)
		rule := run.AddRule(id).
			WithDescription(id).
			WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "error"})

		region := sarif.NewRegion().WithStartLine(v.Line)
		if snippet := strings.TrimSpace(v.ViolatingCode); snippet != "" {
			region.Snippet = &sarif.ArtifactContent{Text: &snippet}
		}
		location := sarif.NewLocation().WithPhysicalLocation(
			sarif.NewPhysicalLocation().
				WithArtifactLocation(sarif.NewArtifactLocation().WithUri(v.File)).
				WithRegion(region),
		)
		result := sarif.NewRuleResult(rule.ID).
			WithMessage(sarif.NewTextMessage(v.Explanation)).
			WithLevel("error").
			WithLocations([]*sarif.Location{location})
		result.PropertyBag = *sarif.NewPropertyBag()
		result.Add("Repository", res.Repository)
		result.Add("Mode", string(res.Mode))
		run.AddResult(result)
	}
	rep.AddRun(run)
	return rep.PrettyWrite(w)
}

func ruleID(v types.Violation) string {
	if id := strings.TrimSpace(v.RuleViolated); id != "" {
		return id
	}
	return "unspecified-rule"
}
