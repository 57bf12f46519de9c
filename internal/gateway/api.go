// ABOUTME: HTTP API routes and shared request/response helpers
// ABOUTME: Maps component error kinds onto status codes and JSON error bodies

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/vitrine/internal/auth"
	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/store"
)

// idempotencyHeader lets clients retry uploads without creating duplicates.
const idempotencyHeader = "Idempotency-Key"

// multipartMemory is how much of a multipart body is buffered in memory before
// spilling to temp files.
const multipartMemory = 32 << 20

// ThemeResponse is the JSON form of a catalog theme.
type ThemeResponse struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	Category      string   `json:"category,omitempty"`
	Plan          string   `json:"plan,omitempty"`
	Price         int64    `json:"price"`
	Version       string   `json:"version,omitempty"`
	Tags          []string `json:"tags"`
	PackagePath   string   `json:"package_path"`
	Thumbnail     string   `json:"thumbnail,omitempty"`
	ArchiveName   string   `json:"archive_name"`
	ArchiveDigest string   `json:"archive_digest"`
	CreatedAt     string   `json:"created_at"`
	UpdatedAt     string   `json:"updated_at"`
}

// CustomThemeResponse is the JSON form of a custom theme.
type CustomThemeResponse struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	Name          string `json:"name"`
	PackagePath   string `json:"package_path"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	ArchiveName   string `json:"archive_name"`
	ArchiveDigest string `json:"archive_digest"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// InstallRequest is the JSON body for POST /api/stores/{storeID}/installations.
type InstallRequest struct {
	PackageID string `json:"package_id"`
	IsCustom  bool   `json:"is_custom"`
}

// InstallResponse is the JSON response for a completed installation.
type InstallResponse struct {
	WorkingCopyPath string `json:"working_copy_path"`
	InstallationID  string `json:"installation_id"`
	Seeded          bool   `json:"seeded"`
}

// InstallationResponse is one row of a store's installation list.
type InstallationResponse struct {
	InstallationID  string `json:"installation_id"`
	PackageID       string `json:"package_id"`
	Name            string `json:"name,omitempty"`
	IsCustom        bool   `json:"is_custom"`
	IsActive        bool   `json:"is_active"`
	WorkingCopyPath string `json:"working_copy_path"`
	InstalledAt     string `json:"installed_at"`
}

// RecentResponse is one entry of the recent-installations ledger.
type RecentResponse struct {
	PackageID   string `json:"package_id"`
	IsCustom    bool   `json:"is_custom"`
	StoreID     string `json:"store_id"`
	PackageName string `json:"package_name"`
	InstalledAt string `json:"installed_at"`
}

// SessionResponse describes an editor session.
type SessionResponse struct {
	StoreID   string `json:"store_id"`
	ActorID   string `json:"actor_id"`
	ExpiresAt string `json:"expires_at"`
}

// registerAPIRoutes adds every theme API route to mux.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/themes", g.handlePublishTheme)
	mux.HandleFunc("GET /api/themes", g.handleListThemes)
	mux.HandleFunc("GET /api/themes/{id}", g.handleGetTheme)
	mux.HandleFunc("PATCH /api/themes/{id}", g.handleRepublishTheme)
	mux.HandleFunc("DELETE /api/themes/{id}", g.handleRemoveTheme)

	// Custom themes belong to the calling actor
	mux.Handle("POST /api/custom-themes", auth.RequireActor(http.HandlerFunc(g.handlePublishCustom)))
	mux.Handle("GET /api/custom-themes", auth.RequireActor(http.HandlerFunc(g.handleListCustom)))
	mux.Handle("GET /api/custom-themes/{id}", auth.RequireActor(http.HandlerFunc(g.handleGetCustom)))
	mux.Handle("GET /api/custom-themes/{id}/content", auth.RequireActor(http.HandlerFunc(g.handleCustomContent)))
	mux.Handle("PATCH /api/custom-themes/{id}", auth.RequireActor(http.HandlerFunc(g.handleRepublishCustom)))
	mux.Handle("DELETE /api/custom-themes/{id}", auth.RequireActor(http.HandlerFunc(g.handleRemoveCustom)))

	mux.HandleFunc("POST /api/stores/{storeID}/installations", g.handleInstall)
	mux.HandleFunc("GET /api/stores/{storeID}/installations", g.handleListInstallations)
	mux.HandleFunc("DELETE /api/installations/{id}", g.handleUninstall)
	mux.HandleFunc("GET /api/installations/recent", g.handleRecent)

	mux.HandleFunc("GET /api/themes/{id}/files", g.handleListFiles)
	mux.HandleFunc("GET /api/themes/{id}/files/{path...}", g.handleReadFile)
	mux.HandleFunc("PUT /api/themes/{id}/files/{path...}", g.handleSaveFile)
	mux.HandleFunc("GET /preview/{kind}/{id}/{path...}", g.handlePreview)

	mux.Handle("POST /api/stores/{storeID}/editor-session", auth.RequireActor(http.HandlerFunc(g.handleOpenSession)))
	mux.Handle("DELETE /api/stores/{storeID}/editor-session", auth.RequireActor(http.HandlerFunc(g.handleCloseSession)))

	mux.Handle("GET /api/audit", auth.RequireActor(http.HandlerFunc(g.handleListAudit)))
}

// statusFor maps an error kind to an HTTP status code.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// sendError writes err as a JSON error. Server-side failures are logged and
// reported without detail.
func (g *Gateway) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		g.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		g.sendJSONError(w, status, "internal server error")
		return
	}
	g.sendJSONError(w, status, err.Error())
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		g.logger.Error("failed to encode error response", "error", err)
	}
}

// sendJSON writes v as a JSON response with the given status.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

// parseBool reads an optional boolean query parameter.
func parseBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.New(errs.ErrValidation, "%s must be true or false", name)
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func themeResponse(p *store.ThemePackage) ThemeResponse {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return ThemeResponse{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Category:      p.Category,
		Plan:          p.Plan,
		Price:         p.Price,
		Version:       p.Version,
		Tags:          tags,
		PackagePath:   p.PackagePath,
		Thumbnail:     p.Thumbnail,
		ArchiveName:   p.ArchiveName,
		ArchiveDigest: p.ArchiveDigest,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func customThemeResponse(p *store.CustomThemePackage) CustomThemeResponse {
	return CustomThemeResponse{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		Name:          p.Name,
		PackagePath:   p.PackagePath,
		Thumbnail:     p.Thumbnail,
		ArchiveName:   p.ArchiveName,
		ArchiveDigest: p.ArchiveDigest,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func installationResponse(t install.InstalledTheme) InstallationResponse {
	return InstallationResponse{
		InstallationID:  t.ID,
		PackageID:       t.PackageID,
		Name:            t.Name,
		IsCustom:        t.IsCustom,
		IsActive:        t.IsActive,
		WorkingCopyPath: t.WorkingCopyPath,
		InstalledAt:     formatTime(t.InstalledAt),
	}
}
