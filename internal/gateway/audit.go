// ABOUTME: Audit trail for theme changes made through the HTTP API
// ABOUTME: Records successful mutations and serves the filtered log

package gateway

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/store"
)

// AuditResponse is one entry of GET /api/audit.
type AuditResponse struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id,omitempty"`
	StoreID    string         `json:"store_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Timestamp  string         `json:"timestamp"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// recordAudit appends an audit entry after a successful change. A failed
// write is logged and does not fail the request.
func (g *Gateway) recordAudit(ctx context.Context, action store.AuditAction, targetType, targetID, storeID string, detail map[string]any) {
	entry := &store.AuditEntry{
		ActorID:    auth.ActorID(ctx),
		StoreID:    storeID,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Detail:     detail,
	}
	if err := g.store.AppendAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		g.logger.Warn("failed to record audit entry",
			"action", action,
			"target", targetType+"/"+targetID,
			"error", err,
		)
	}
}

// handleListAudit handles GET /api/audit. Supported query filters are action,
// target_type, target_id, store_id, actor_id, since (RFC3339), and limit.
func (g *Gateway) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f store.AuditFilter

	if v := q.Get("action"); v != "" {
		action := store.AuditAction(v)
		if !store.IsValidAuditAction(action) {
			g.sendError(w, r, errs.New(errs.ErrValidation, "unknown audit action: %s", v))
			return
		}
		f.Action = &action
	}
	for name, dst := range map[string]**string{
		"target_type": &f.TargetType,
		"target_id":   &f.TargetID,
		"store_id":    &f.StoreID,
		"actor_id":    &f.ActorID,
	} {
		if v := q.Get(name); v != "" {
			*dst = &v
		}
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			g.sendError(w, r, errs.Wrap(errs.ErrValidation, "invalid since", err))
			return
		}
		f.Since = &since
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			g.sendError(w, r, errs.New(errs.ErrValidation, "invalid limit"))
			return
		}
		f.Limit = n
	}

	entries, err := g.store.ListAuditLog(r.Context(), f)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	out := make([]AuditResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditResponse{
			ID:         e.ID,
			ActorID:    e.ActorID,
			StoreID:    e.StoreID,
			Action:     string(e.Action),
			TargetType: e.TargetType,
			TargetID:   e.TargetID,
			Timestamp:  formatTime(e.Timestamp),
			Detail:     e.Detail,
		})
	}
	g.sendJSON(w, http.StatusOK, out)
}
