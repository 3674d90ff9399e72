package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"guardian/internal/app"
	"guardian/internal/brief"
	"guardian/internal/config"
	"guardian/internal/hybrid"
	"guardian/internal/report"
	"guardian/internal/types"
)

// briefSource is the set of mutually exclusive ways a command receives
// its compliance brief.
type briefSource struct {
	text     string
	file     string
	pdf      string
	question string
}

func (b *briefSource) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&b.text, "brief", "", "compliance brief text")
	f.StringVar(&b.file, "brief-file", "", "file holding the compliance brief")
	f.StringVar(&b.pdf, "pdf", "", "regulatory PDF to synthesise the brief from")
	f.StringVarP(&b.question, "question", "q", "", "question used when synthesising the brief from --pdf")
	cmd.MarkFlagsMutuallyExclusive("brief", "brief-file", "pdf")
	cmd.MarkFlagsOneRequired("brief", "brief-file", "pdf")
}

func (b *briefSource) resolve(ctx context.Context, a *app.App) (string, error) {
	switch {
	case b.text != "":
		return b.text, nil
	case b.file != "":
		if err := config.RequireFile(b.file); err != nil {
			return "", err
		}
		raw, err := os.ReadFile(b.file)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(string(raw)) == "" {
			return "", fmt.Errorf("brief file %s is empty", b.file)
		}
		return string(raw), nil
	case b.pdf != "":
		if err := config.RequireFile(b.pdf); err != nil {
			return "", err
		}
		s, err := a.Brief(ctx)
		if err != nil {
			return "", err
		}
		return s.Analyze(ctx, b.pdf, b.question, brief.ScopeCurrentDocument)
	}
	return "", errors.New("one of --brief, --brief-file or --pdf is required")
}

func newAuditCmd() *cobra.Command {
	var (
		src        briefSource
		mode       string
		format     string
		output     string
		export     bool
		failOnFind bool
	)
	cmd := &cobra.Command{
		Use:   "audit <repository>",
		Short: "Audit a repository against a compliance brief",
		Long: `Audit clones the repository (or uses a local directory as is), derives
violation patterns from the brief and scans the matching files in two passes.
With --mode exhaustive every relevant source file is scanned instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			text, err := src.resolve(ctx, a)
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			res, err := a.Auditor.AuditWithOptions(ctx, args[0], text, hybrid.Options{
				Mode: auditMode(mode),
				Progress: func(event string) {
					fmt.Fprintf(errOut, "[progress] %s\n", event)
				},
			})
			if err != nil {
				return err
			}

			if err := writeReport(cmd.OutOrStdout(), output, f, res); err != nil {
				return err
			}
			if export {
				if a.Exporter == nil {
					return errors.New("--export needs GUARDIAN_REPORT_DIR or artifact storage to be configured")
				}
				exp, err := a.Exporter.Export(ctx, res)
				if err != nil {
					return err
				}
				fmt.Fprintf(errOut, "exported run %s: %s\n", exp.RunID, strings.Join(exp.Files, ", "))
				for _, name := range exp.Files {
					if u := exp.URLs[name]; u != "" {
						fmt.Fprintf(errOut, "  %s: %s\n", name, u)
					}
				}
			}
			if failOnFind && res.TotalViolations > 0 {
				return fmt.Errorf("%d violation(s) found", res.TotalViolations)
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&mode, "mode", string(types.ModeHybrid), "audit mode: hybrid or exhaustive")
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "report format: json, text or sarif")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().BoolVar(&export, "export", false, "store the report in every format in the configured artifact store")
	cmd.Flags().BoolVar(&failOnFind, "fail-on-violation", false, "exit non-zero when violations are found")
	return cmd
}

func auditMode(s string) types.AuditMode {
	if strings.EqualFold(strings.TrimSpace(s), string(types.ModeExhaustive)) {
		return types.ModeExhaustive
	}
	return types.ModeHybrid
}

func writeReport(stdout io.Writer, path string, f report.Format, res types.AuditResult) error {
	if path == "" {
		return report.Write(stdout, f, res)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Write(out, f, res); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
