// Package api exposes the auditor, brief synthesizer and repository Q&A
// over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"

	"guardian/internal/artifact"
	"guardian/internal/brief"
	"guardian/internal/hybrid"
	"guardian/internal/qa"
	"guardian/internal/types"
	"guardian/internal/vectorstore"
)

type BriefService interface {
	AnalyzeDetailed(ctx context.Context, documentPath, question string, scope brief.Scope) (brief.Result, error)
	QueryAll(ctx context.Context, question string, k int) (brief.QueryAllResult, error)
}

type AuditService interface {
	AuditWithOptions(ctx context.Context, repositoryURL, brief string, opts hybrid.Options) (types.AuditResult, error)
}

type QAService interface {
	Init(ctx context.Context, repoURL string) (*qa.Session, qa.IndexStats, error)
	Get(id string) (*qa.Session, error)
	Resolve(ctx context.Context, repoURLOrSessionID string) (*qa.Session, error)
	Delete(id string) bool
	Count() int
}

type Exporter interface {
	Export(ctx context.Context, res types.AuditResult) (artifact.Export, error)
}

// Deps are the collaborators a Handler serves. Exporter may be nil.
type Deps struct {
	Brief            BriefService
	Audit            AuditService
	QA               QAService
	Exporter         Exporter
	APIKeyConfigured bool
	Logger           hclog.Logger

	// StreamTimeout bounds a websocket audit, which the request timeout
	// middleware does not cover.
	StreamTimeout time.Duration
}

type Handler struct {
	Deps
	log hclog.Logger
}

func NewHandler(d Deps) *Handler {
	l := d.Logger
	if l == nil {
		l = hclog.NewNullLogger()
	}
	return &Handler{Deps: d, log: l.Named("api")}
}

func parseScope(s string) (brief.Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current", "current_pdf", "document":
		return brief.ScopeCurrentDocument, nil
	case "all", "all_pdfs":
		return brief.ScopeAllDocuments, nil
	default:
		return 0, badRequest("unknown scope %q", s)
	}
}

func parseMode(s string) types.AuditMode {
	if strings.EqualFold(strings.TrimSpace(s), string(types.ModeExhaustive)) {
		return types.ModeExhaustive
	}
	return types.ModeHybrid
}

type legalRequest struct {
	DocumentPath string `json:"document_path" validate:"required_unless=Scope all"`
	Question     string `json:"question"`
	Scope        string `json:"scope" validate:"omitempty,oneof=current all"`
}

type legalResponse struct {
	Analysis string               `json:"analysis"`
	Sources  []string             `json:"sources"`
	Fallback bool                 `json:"fallback,omitempty"`
	Ingested vectorstore.AddStats `json:"ingested"`
}

// AnalyzeLegal accepts either a JSON body naming a server-side document or
// a multipart upload in the "file" field.
func (h *Handler) AnalyzeLegal(w http.ResponseWriter, r *http.Request) {
	var (
		req legalRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var cleanup func()
		req, cleanup, err = h.legalUpload(r)
		if cleanup != nil {
			defer cleanup()
		}
	} else {
		req, err = decode[legalRequest](r)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Brief.AnalyzeDetailed(r.Context(), req.DocumentPath, req.Question, scope)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, legalResponse{Analysis: res.Text, Sources: res.Sources, Fallback: res.Fallback, Ingested: res.Ingested})
}

func (h *Handler) legalUpload(r *http.Request) (legalRequest, func(), error) {
	var req legalRequest
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return req, nil, badRequest("invalid multipart form: %v", err)
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		return req, nil, badRequest("file is required")
	}
	defer f.Close()
	name := filepath.Base(hdr.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return req, nil, badRequest("only PDF files are supported")
	}
	dir, err := os.MkdirTemp("", "guardian_upload_")
	if err != nil {
		return req, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	dst := filepath.Join(dir, name)
	out, err := os.Create(dst)
	if err != nil {
		return req, cleanup, err
	}
	if _, err := io.Copy(out, f); err != nil {
		_ = out.Close()
		return req, cleanup, err
	}
	if err := out.Close(); err != nil {
		return req, cleanup, err
	}
	req = legalRequest{DocumentPath: dst, Question: r.FormValue("question"), Scope: r.FormValue("scope")}
	return req, cleanup, nil
}

type queryAllRequest struct {
	Question string `json:"question" validate:"required"`
	K        int    `json:"k" validate:"gte=0,lte=100"`
}

func (h *Handler) QueryAllDocuments(w http.ResponseWriter, r *http.Request) {
	req, err := decode[queryAllRequest](r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Brief.QueryAll(r.Context(), req.Question, req.K)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type auditRequest struct {
	RepoURL      string `json:"repo_url" validate:"required"`
	Brief        string `json:"brief" validate:"required_without=DocumentPath"`
	DocumentPath string `json:"document_path"`
	Question     string `json:"question"`
	Mode         string `json:"mode" validate:"omitempty,oneof=hybrid exhaustive"`
	Export       bool   `json:"export"`
}

type auditResponse struct {
	Result types.AuditResult `json:"result"`
	Brief  string            `json:"brief,omitempty"`
	Export *artifact.Export  `json:"export,omitempty"`
}

// resolveBrief synthesises a brief from DocumentPath when none was given.
func (h *Handler) resolveBrief(ctx context.Context, text, documentPath, question string) (string, bool, error) {
	if strings.TrimSpace(text) != "" {
		return text, false, nil
	}
	res, err := h.Brief.AnalyzeDetailed(ctx, documentPath, question, brief.ScopeCurrentDocument)
	if err != nil {
		return "", false, fmt.Errorf("synthesize brief: %w", err)
	}
	return res.Text, true, nil
}

func (h *Handler) AuditCode(w http.ResponseWriter, r *http.Request) {
	req, err := decode[auditRequest](r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	text, synthesized, err := h.resolveBrief(r.Context(), req.Brief, req.DocumentPath, req.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.Audit.AuditWithOptions(r.Context(), req.RepoURL, text, hybrid.Options{Mode: parseMode(req.Mode)})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := auditResponse{Result: res}
	if synthesized {
		out.Brief = text
	}
	if req.Export && h.Exporter != nil {
		exp, err := h.Exporter.Export(r.Context(), res)
		if err != nil {
			h.log.Warn("report export failed", "repo", req.RepoURL, "error", err)
		} else {
			out.Export = &exp
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type qaInitRequest struct {
	RepoURL string `json:"repo_url" validate:"required"`
}

type qaInitResponse struct {
	SessionID string `json:"session_id"`
	RepoURL   string `json:"repo_url"`
	qa.IndexStats
}

func (h *Handler) QAInit(w http.ResponseWriter, r *http.Request) {
	req, err := decode[qaInitRequest](r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, stats, err := h.QA.Init(r.Context(), req.RepoURL)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qaInitResponse{SessionID: s.ID, RepoURL: s.RepoURL, IndexStats: stats})
}

type qaAskRequest struct {
	SessionID string `json:"session_id" validate:"required_without=RepoURL"`
	RepoURL   string `json:"repo_url"`
	Question  string `json:"question" validate:"required"`
}

type qaAskResponse struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	qa.Answer
}

func (h *Handler) QAAsk(w http.ResponseWriter, r *http.Request) {
	req, err := decode[qaAskRequest](r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := req.SessionID
	if key == "" {
		key = req.RepoURL
	}
	s, err := h.QA.Resolve(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ans, err := s.Ask(r.Context(), req.Question)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, qaAskResponse{SessionID: s.ID, Question: req.Question, Answer: ans})
}

type qaInsightsRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

func (h *Handler) QAInsights(w http.ResponseWriter, r *http.Request) {
	req, err := decode[qaInsightsRequest](r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.QA.Get(req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ins, err := s.Insights(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": s.ID, "insights": ins})
}

type qaComplianceRequest struct {
	SessionID  string   `json:"session_id" validate:"required"`
	Guidelines []string `json:"guidelines" validate:"min=1,dive,required"`
}

func (h *Handler) QACompliance(w http.ResponseWriter, r *http.Request) {
	req, err := decode[qaComplianceRequest](r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.QA.Get(req.SessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	checks, err := s.CheckCompliance(r.Context(), req.Guidelines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":               s.ID,
		"compliance_checks":        checks,
		"total_guidelines_checked": len(checks),
	})
}

func (h *Handler) QAHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.QA.Get(id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": s.ID,
		"repo_url":   s.RepoURL,
		"messages":   s.History(),
	})
}

func (h *Handler) QADelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.QA.Delete(id) {
		h.writeError(w, r, fmt.Errorf("%w: %s", qa.ErrSessionNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "deleted": true})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	active := 0
	if h.QA != nil {
		active = h.QA.Count()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "healthy",
		"api_key_configured": h.APIKeyConfigured,
		"active_sessions":    active,
	})
}
