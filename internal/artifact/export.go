package artifact

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"guardian/internal/report"
	"guardian/internal/types"
)

// Export describes the artifacts written for one audit.
type Export struct {
	RunID string            `json:"run_id"`
	Files []string          `json:"files"`
	URLs  map[string]string `json:"urls,omitempty"`
}

// Exporter renders audit results and saves them to a Store.
type Exporter struct {
	store   Store
	formats []report.Format
	log     hclog.Logger
}

// NewExporter writes every format in formats, or JSON, text and SARIF when
// none are given.
func NewExporter(store Store, logger hclog.Logger, formats ...report.Format) *Exporter {
	if len(formats) == 0 {
		formats = []report.Format{report.FormatJSON, report.FormatText, report.FormatSARIF}
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Exporter{store: store, formats: formats, log: logger.Named("artifact")}
}

// Export saves res under a fresh run id.
func (e *Exporter) Export(ctx context.Context, res types.AuditResult) (Export, error) {
	return e.ExportRun(ctx, uuid.NewString(), res)
}

func (e *Exporter) ExportRun(ctx context.Context, runID string, res types.AuditResult) (Export, error) {
	out := Export{RunID: runID, URLs: map[string]string{}}
	for _, f := range e.formats {
		var buf bytes.Buffer
		if err := report.Write(&buf, f, res); err != nil {
			return out, fmt.Errorf("render %s report: %w", f, err)
		}
		name := "report" + f.Ext()
		if err := e.store.Put(ctx, runID, name, buf.Bytes()); err != nil {
			return out, fmt.Errorf("save %s: %w", name, err)
		}
		out.Files = append(out.Files, name)
		url, err := e.store.GetURL(ctx, runID, name)
		if err != nil {
			e.log.Warn("could not resolve artifact url", "run_id", runID, "name", name, "error", err)
			continue
		}
		if url != "" {
			out.URLs[name] = url
		}
	}
	e.log.Info("report exported", "run_id", runID, "files", len(out.Files))
	return out, nil
}
