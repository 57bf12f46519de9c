// ABOUTME: HTTP handlers for reading, saving, and previewing theme files
// ABOUTME: Builds resolver requests from the package id, store_id, and calling actor

package gateway

import (
	"bytes"
	"io"
	"net/http"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/catalog"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/resolve"
	"github.com/2389/vitrine/internal/serve"
	"github.com/2389/vitrine/internal/store"
)

// Preview kinds in /preview/{kind}/{id}/...
const (
	previewTheme  = "theme"
	previewCustom = "custom"
)

// tierHeader tells clients which storage tier answered a file request.
const tierHeader = "X-Theme-Tier"

// resolveRequest looks up the package and builds the resolver request. Custom
// themes are only reachable by their owner.
func (g *Gateway) resolveRequest(r *http.Request, id string, isCustom bool) (resolve.Request, error) {
	ctx := r.Context()
	req := resolve.Request{
		StoreID: r.URL.Query().Get("store_id"),
		ActorID: auth.ActorID(ctx),
	}
	if isCustom {
		pkg, err := g.catalog.GetCustom(ctx, req.ActorID, id)
		if err != nil {
			return req, err
		}
		req.Target = resolve.CustomTargetFor(pkg)
		return req, nil
	}
	pkg, err := g.catalog.Get(ctx, id)
	if err != nil {
		return req, err
	}
	req.Target = resolve.TargetFor(pkg)
	return req, nil
}

func (g *Gateway) fileRequest(r *http.Request) (resolve.Request, error) {
	isCustom, err := parseBool(r, "custom")
	if err != nil {
		return resolve.Request{}, err
	}
	return g.resolveRequest(r, r.PathValue("id"), isCustom)
}

func writeFile(w http.ResponseWriter, r *http.Request, f *serve.File) {
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set(tierHeader, f.Tier)
	http.ServeContent(w, r, f.RelPath, f.ModTime, bytes.NewReader(f.Content))
}

// handleListFiles handles GET /api/themes/{id}/files.
func (g *Gateway) handleListFiles(w http.ResponseWriter, r *http.Request) {
	req, err := g.fileRequest(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	files, err := g.files.ListFiles(r.Context(), req)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string][]string{"files": files})
}

// handleReadFile handles GET /api/themes/{id}/files/{path...}. Content is
// returned as stored, without rewriting.
func (g *Gateway) handleReadFile(w http.ResponseWriter, r *http.Request) {
	req, err := g.fileRequest(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	f, err := g.files.ReadFile(r.Context(), req, r.PathValue("path"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeFile(w, r, f)
}

// handleSaveFile handles PUT /api/themes/{id}/files/{path...}. The request body
// replaces the file in the store or actor working copy.
func (g *Gateway) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	req, err := g.fileRequest(r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	if req.StoreID != "" {
		if err := g.sessions.Check(req.StoreID, req.ActorID); err != nil {
			g.sendError(w, r, err)
			return
		}
	}

	limit := g.config.Uploads.MaxArchiveBytes
	if limit <= 0 {
		limit = catalog.DefaultMaxArchiveBytes
	}
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		g.sendError(w, r, errs.Wrap(errs.ErrValidation, "reading request body", err))
		return
	}

	saved, err := g.resolver.SaveEdit(r.Context(), req, r.PathValue("path"), content)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	targetType := store.AuditTargetTheme
	if req.Target.IsCustom {
		targetType = store.AuditTargetCustomTheme
	}
	g.recordAudit(r.Context(), store.AuditSaveFile, targetType, r.PathValue("id"), req.StoreID,
		map[string]any{"path": r.PathValue("path"), "bytes": len(content)})
	g.sendJSON(w, http.StatusOK, map[string]string{"saved_path": saved})
}

// handlePreview handles GET /preview/{kind}/{id}/{path...}. HTML references are
// rewritten back under the same preview prefix and keep the store_id.
func (g *Gateway) handlePreview(w http.ResponseWriter, r *http.Request) {
	kind, id := r.PathValue("kind"), r.PathValue("id")
	if kind != previewTheme && kind != previewCustom {
		g.sendJSONError(w, http.StatusNotFound, "unknown preview kind")
		return
	}

	req, err := g.resolveRequest(r, id, kind == previewCustom)
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	opts := serve.Options{
		BaseURL: "/preview/" + kind + "/" + id + "/",
		Preview: true,
	}
	if req.StoreID != "" {
		opts.Query = map[string]string{"store_id": req.StoreID}
	}
	f, err := g.files.Serve(r.Context(), req, r.PathValue("path"), opts)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	writeFile(w, r, f)
}
