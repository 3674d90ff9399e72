package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"guardian/internal/hybrid"
	"guardian/internal/types"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
	streamPingEvery = (streamPongWait * 9) / 10
)

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// streamMessage is one websocket frame. Type is "progress", "result" or
// "error"; progress frames carry the audit event in Event.
type streamMessage struct {
	Type    string             `json:"type"`
	Event   string             `json:"event,omitempty"`
	Result  *types.AuditResult `json:"result,omitempty"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
}

// AuditStream runs an audit and reports progress over a websocket. The
// query carries repo_url, brief (or document_path) and mode.
func (h *Handler) AuditStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	repoURL := strings.TrimSpace(q.Get("repo_url"))
	briefText := q.Get("brief")
	docPath := strings.TrimSpace(q.Get("document_path"))
	if repoURL == "" || (strings.TrimSpace(briefText) == "" && docPath == "") {
		h.writeError(w, r, badRequest("repo_url and one of brief or document_path are required"))
		return
	}

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if h.StreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.StreamTimeout)
		defer cancel()
	}

	if err := conn.SetReadDeadline(time.Now().Add(streamPongWait)); err != nil {
		h.log.Debug("stream set read deadline failed", "error", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	// reader: only control frames are expected; a close cancels the audit
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	writeCh := make(chan streamMessage, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(streamPingEvery)
		defer ticker.Stop()
		for {
			select {
			case out, ok := <-writeCh:
				if !ok {
					_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(streamWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	push := func(m streamMessage) {
		select {
		case writeCh <- m:
		case <-writerDone:
		}
	}

	res, err := h.runStreamedAudit(ctx, repoURL, briefText, docPath, q.Get("question"), parseMode(q.Get("mode")), func(ev string) {
		push(streamMessage{Type: "progress", Event: ev})
	})
	if err != nil {
		e := classify(err)
		push(streamMessage{Type: "error", Event: hybrid.EventError, Code: e.Code, Message: e.Error()})
	} else {
		push(streamMessage{Type: "result", Result: &res})
	}
	close(writeCh)
	<-writerDone
}

func (h *Handler) runStreamedAudit(ctx context.Context, repoURL, briefText, docPath, question string, mode types.AuditMode, progress func(string)) (types.AuditResult, error) {
	text, _, err := h.resolveBrief(ctx, briefText, docPath, question)
	if err != nil {
		return types.AuditResult{}, err
	}
	return h.Audit.AuditWithOptions(ctx, repoURL, text, hybrid.Options{Mode: mode, Progress: progress})
}
