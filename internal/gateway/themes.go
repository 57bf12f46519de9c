// ABOUTME: HTTP handlers for publishing and managing catalog and custom themes
// ABOUTME: Reads multipart uploads and honors the Idempotency-Key header on publish

package gateway

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/catalog"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/store"
)

// uploadForm wraps a parsed multipart request.
type uploadForm struct {
	form  *multipart.Form
	files []multipart.File
}

// parseUpload parses a multipart body bounded by the archive limit plus room
// for a thumbnail and form fields.
func (g *Gateway) parseUpload(w http.ResponseWriter, r *http.Request) (*uploadForm, error) {
	limit := g.config.Uploads.MaxArchiveBytes
	if limit <= 0 {
		limit = catalog.DefaultMaxArchiveBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, 2*limit+(1<<20))
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errs.New(errs.ErrValidation, "request body exceeds %d bytes", maxErr.Limit)
		}
		return nil, errs.Wrap(errs.ErrValidation, "reading multipart form", err)
	}
	return &uploadForm{form: r.MultipartForm}, nil
}

// value returns a form field and whether it was sent at all.
func (u *uploadForm) value(name string) (string, bool) {
	vs, ok := u.form.Value[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// upload opens a file part. It returns nil when the part is absent.
func (u *uploadForm) upload(name string) (*catalog.Upload, error) {
	fhs := u.form.File[name]
	if len(fhs) == 0 {
		return nil, nil
	}
	fh := fhs[0]
	f, err := fh.Open()
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "opening "+name, err)
	}
	u.files = append(u.files, f)
	return &catalog.Upload{Filename: fh.Filename, Size: fh.Size, Reader: f}, nil
}

// close releases open parts and spilled temp files.
func (u *uploadForm) close() {
	for _, f := range u.files {
		f.Close()
	}
	u.form.RemoveAll()
}

func parseTags(raw string) []string {
	tags := []string{}
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func parsePrice(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	p, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, errs.New(errs.ErrValidation, "price must be an integer")
	}
	return p, nil
}

// claimIdempotencyKey returns false, after writing a 409, when the key was
// already used. The returned release func frees the key after a failure.
func (g *Gateway) claimIdempotencyKey(w http.ResponseWriter, r *http.Request) (release func(), ok bool) {
	key := r.Header.Get(idempotencyHeader)
	if key == "" {
		return func() {}, true
	}
	key = auth.ActorID(r.Context()) + "|" + r.URL.Path + "|" + key
	if !g.dedupe.Claim(key) {
		g.logger.Info("rejected repeated upload", "path", r.URL.Path)
		g.sendJSONError(w, http.StatusConflict, "request with this idempotency key was already accepted")
		return nil, false
	}
	return func() { g.dedupe.Forget(key) }, true
}

// handlePublishTheme handles POST /api/themes.
func (g *Gateway) handlePublishTheme(w http.ResponseWriter, r *http.Request) {
	release, ok := g.claimIdempotencyKey(w, r)
	if !ok {
		return
	}

	form, err := g.parseUpload(w, r)
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}
	defer form.close()

	req := catalog.PublishRequest{}
	req.Name, _ = form.value("name")
	req.Description, _ = form.value("description")
	req.Category, _ = form.value("category")
	req.Plan, _ = form.value("plan")
	req.Version, _ = form.value("version")
	if raw, ok := form.value("tags"); ok {
		req.Tags = parseTags(raw)
	}
	raw, _ := form.value("price")
	if req.Price, err = parsePrice(raw); err == nil {
		if req.Archive, err = form.upload("archive"); err == nil {
			req.Thumbnail, err = form.upload("thumbnail")
		}
	}
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}

	pkg, err := g.catalog.Publish(r.Context(), req)
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditPublishTheme, store.AuditTargetTheme, pkg.ID, "",
		map[string]any{"name": pkg.Name, "archive": pkg.ArchiveName})
	g.sendJSON(w, http.StatusCreated, themeResponse(pkg))
}

// handleRepublishTheme handles PATCH /api/themes/{id}. Omitted fields keep their values.
func (g *Gateway) handleRepublishTheme(w http.ResponseWriter, r *http.Request) {
	form, err := g.parseUpload(w, r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	defer form.close()

	var req catalog.RepublishRequest
	if v, ok := form.value("name"); ok {
		req.Name = &v
	}
	if v, ok := form.value("description"); ok {
		req.Description = &v
	}
	if v, ok := form.value("category"); ok {
		req.Category = &v
	}
	if v, ok := form.value("plan"); ok {
		req.Plan = &v
	}
	if v, ok := form.value("version"); ok {
		req.Version = &v
	}
	if v, ok := form.value("tags"); ok {
		req.Tags = parseTags(v)
	}
	if v, ok := form.value("price"); ok {
		p, err := parsePrice(v)
		if err != nil {
			g.sendError(w, r, err)
			return
		}
		req.Price = &p
	}
	if req.Archive, err = form.upload("archive"); err == nil {
		req.Thumbnail, err = form.upload("thumbnail")
	}
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	pkg, err := g.catalog.Republish(r.Context(), r.PathValue("id"), req)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditRepublishTheme, store.AuditTargetTheme, pkg.ID, "",
		map[string]any{"archive_replaced": req.Archive != nil})
	g.sendJSON(w, http.StatusOK, themeResponse(pkg))
}

// handleRemoveTheme handles DELETE /api/themes/{id}.
func (g *Gateway) handleRemoveTheme(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := g.catalog.Remove(r.Context(), id); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditRemoveTheme, store.AuditTargetTheme, id, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetTheme handles GET /api/themes/{id}.
func (g *Gateway) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	pkg, err := g.catalog.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, themeResponse(pkg))
}

// handleListThemes handles GET /api/themes.
func (g *Gateway) handleListThemes(w http.ResponseWriter, r *http.Request) {
	pkgs, err := g.catalog.List(r.Context())
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	out := make([]ThemeResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, themeResponse(p))
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handlePublishCustom handles POST /api/custom-themes.
func (g *Gateway) handlePublishCustom(w http.ResponseWriter, r *http.Request) {
	release, ok := g.claimIdempotencyKey(w, r)
	if !ok {
		return
	}

	form, err := g.parseUpload(w, r)
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}
	defer form.close()

	name, _ := form.value("name")
	arc, err := form.upload("archive")
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}
	thumb, err := form.upload("thumbnail")
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}

	pkg, err := g.catalog.PublishCustom(r.Context(), auth.ActorID(r.Context()), name, arc, thumb)
	if err != nil {
		release()
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditPublishCustom, store.AuditTargetCustomTheme, pkg.ID, "",
		map[string]any{"name": pkg.Name, "archive": pkg.ArchiveName})
	g.sendJSON(w, http.StatusCreated, customThemeResponse(pkg))
}

// handleRepublishCustom handles PATCH /api/custom-themes/{id}.
func (g *Gateway) handleRepublishCustom(w http.ResponseWriter, r *http.Request) {
	form, err := g.parseUpload(w, r)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	defer form.close()

	var req catalog.CustomRepublishRequest
	if v, ok := form.value("name"); ok {
		req.Name = &v
	}
	if req.Archive, err = form.upload("archive"); err == nil {
		req.Thumbnail, err = form.upload("thumbnail")
	}
	if err != nil {
		g.sendError(w, r, err)
		return
	}

	pkg, err := g.catalog.RepublishCustom(r.Context(), auth.ActorID(r.Context()), r.PathValue("id"), req)
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditRepublishCustom, store.AuditTargetCustomTheme, pkg.ID, "",
		map[string]any{"archive_replaced": req.Archive != nil})
	g.sendJSON(w, http.StatusOK, customThemeResponse(pkg))
}

// handleRemoveCustom handles DELETE /api/custom-themes/{id}.
func (g *Gateway) handleRemoveCustom(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := g.catalog.RemoveCustom(r.Context(), auth.ActorID(r.Context()), id); err != nil {
		g.sendError(w, r, err)
		return
	}
	g.recordAudit(r.Context(), store.AuditRemoveCustom, store.AuditTargetCustomTheme, id, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetCustom handles GET /api/custom-themes/{id}.
func (g *Gateway) handleGetCustom(w http.ResponseWriter, r *http.Request) {
	pkg, err := g.catalog.GetCustom(r.Context(), auth.ActorID(r.Context()), r.PathValue("id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, customThemeResponse(pkg))
}

// handleListCustom handles GET /api/custom-themes.
func (g *Gateway) handleListCustom(w http.ResponseWriter, r *http.Request) {
	pkgs, err := g.catalog.ListCustom(r.Context(), auth.ActorID(r.Context()))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	out := make([]CustomThemeResponse, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, customThemeResponse(p))
	}
	g.sendJSON(w, http.StatusOK, out)
}

// handleCustomContent handles GET /api/custom-themes/{id}/content.
func (g *Gateway) handleCustomContent(w http.ResponseWriter, r *http.Request) {
	content, err := g.catalog.CustomContent(r.Context(), auth.ActorID(r.Context()), r.PathValue("id"))
	if err != nil {
		g.sendError(w, r, err)
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]string{"html": content.HTML, "css": content.CSS})
}
