// ABOUTME: HTTP handlers for installing themes and the recent-installations ledger
// ABOUTME: Also opens and closes per-store editor sessions

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/store"
)

// handleInstall handles POST /api/stores/{storeID}/installations.
func (g *Gateway) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req InstallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	storeID := r.PathValue("storeID")
	res, err := g.installs.Install(r.Context(), storeID, req.PackageID, req.IsCustom)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditInstallTheme, store.AuditTargetInstallation, res.InstallationID, storeID,
		map[string]any{"package_id": req.PackageID, "is_custom": req.IsCustom, "seeded": res.Seeded})
	g.sendJSON(w, http.StatusCreated, InstallResponse{
		WorkingCopyPath: res.WorkingCopyPath,
		InstallationID:  res.InstallationID,
		Seeded:          res.Seeded,
	})
}

// handleUninstall handles DELETE /api/installations/{id}.
func (g *Gateway) handleUninstall(w http.ResponseWriter, r *http.Request) {
	inst, err := g.installs.Uninstall(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditUninstallTheme, store.AuditTargetInstallation, inst.ID, inst.StoreID,
		map[string]any{"package_id": inst.PackageID})
	g.sendJSON(w, http.StatusOK, map[string]string{"installation_id": inst.ID})
}

// handleListInstallations handles GET /api/stores/{storeID}/installations.
func (g *Gateway) handleListInstallations(w http.ResponseWriter, r *http.Request) {
	installed, err := g.installs.ListInstalled(r.Context(), r.PathValue("storeID"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	out := make([]InstallationResponse, 0, len(installed))
	for _, t := range installed {
		out = append(out, installationResponse(t))
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleRecent handles GET /api/installations/recent.
func (g *Gateway) handleRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := g.ledger.List(r.Context())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	out := make([]RecentResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, RecentResponse{
			PackageID:   e.PackageID,
			IsCustom:    e.IsCustom,
			StoreID:     e.StoreID,
			PackageName: e.PackageName,
			InstalledAt: formatTime(e.InstalledAt),
		})
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleOpenSession handles POST /api/stores/{storeID}/editor-session.
func (g *Gateway) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	s, err := g.sessions.Open(r.PathValue("storeID"), auth.ActorID(r.Context()))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, SessionResponse{
		StoreID:   s.StoreID,
		ActorID:   s.ActorID,
		ExpiresAt: formatTime(s.ExpiresAt),
	})
}

// handleCloseSession handles DELETE /api/stores/{storeID}/editor-session.
func (g *Gateway) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	storeID := r.PathValue("storeID")
	if storeID == "" {
		g.sendError(w, r, errs.New(errs.ErrValidation, "store id is required"))
		return
	}
	if err := g.sessions.Close(storeID, auth.ActorID(r.Context())); err != nil {
		g.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
