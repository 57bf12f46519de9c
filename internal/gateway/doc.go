// Package gateway orchestrates the vitrine server components.
//
// # Overview
//
// The gateway package owns every theme component and puts them behind one
// HTTP server: the catalog (package and custom package stores), the
// installation manager, the customization resolver, the file serving gateway,
// the recent-installations ledger, editor sessions, upload idempotency keys,
// and the background install-state reconciler.
//
// # HTTP API
//
// Catalog themes (themes.go):
//
//   - POST /api/themes - Publish a theme (multipart, honors Idempotency-Key)
//   - PATCH /api/themes/{id} - Republish; omitted fields are unchanged
//   - DELETE /api/themes/{id} - Remove a theme and its installation records
//   - GET /api/themes, GET /api/themes/{id}
//
// Custom themes require an authenticated actor and are scoped to the owner:
//
//   - POST, GET /api/custom-themes
//   - GET, PATCH, DELETE /api/custom-themes/{id}
//   - GET /api/custom-themes/{id}/content - Editable HTML and CSS
//
// Installations (installs.go):
//
//   - POST /api/stores/{storeID}/installations - {package_id, is_custom}
//   - GET /api/stores/{storeID}/installations
//   - DELETE /api/installations/{id}
//   - GET /api/installations/recent
//   - POST, DELETE /api/stores/{storeID}/editor-session
//
// Files (files.go), with ?store_id= and ?custom=true selecting the tier:
//
//   - GET /api/themes/{id}/files - List files across tiers
//   - GET /api/themes/{id}/files/{path...} - Raw file bytes
//   - PUT /api/themes/{id}/files/{path...} - Save an edit into a working copy
//   - GET /preview/{kind}/{id}/{path...} - Rendered preview with rewritten links
//
// Audit (audit.go), authenticated; filters are action, target_type,
// target_id, store_id, actor_id, since, and limit:
//
//   - GET /api/audit - Successful theme changes, newest first
//
// Health:
//
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (store reachable)
//   - GET /metrics - Prometheus metrics when enabled
//
// # Errors
//
// Errors are JSON objects of the form {"error": "..."}. Component error kinds
// map to status codes: validation and invalid request 400, not found 404,
// access denied 403, extraction 422, conflict 409, everything else 500.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	go gw.Run(ctx)
//
// Graceful shutdown:
//
//	cancel()
//
// Run reconciles install state once before serving and, when
// reconcile.schedule is set, again on that cron schedule.
//
// # Key Files
//
//   - gateway.go: Gateway struct, initialization, Run/Shutdown
//   - api.go: Routes, response types, error mapping
//   - themes.go, installs.go, files.go: Handlers
//   - audit.go: Audit recording and listing
package gateway
