// ABOUTME: File Serving Gateway for editor reads, live previews, and static theme assets
// ABOUTME: Falls back to canonical files for paths a store has not customized

package serve

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/resolve"
)

// Tier names where a served file came from.
const (
	TierWorkingCopy = "working-copy"
	TierCanonical   = "canonical"
)

// File is a resolved theme file ready to write to a client.
type File struct {
	RelPath     string
	Path        string
	ContentType string
	Content     []byte
	ModTime     time.Time
	Tier        string
}

// Options control how Serve transforms content.
type Options struct {
	// BaseURL prefixes rewritten relative references in HTML, e.g. "/preview/theme/{id}/".
	// Rewriting is skipped when empty.
	BaseURL string
	// Query is merged into every rewritten reference so context like store_id survives.
	Query map[string]string
	// Preview renders Markdown files to HTML.
	Preview bool
}

// Gateway serves theme files through the resolver.
type Gateway struct {
	resolver *resolve.Resolver
	markdown goldmark.Markdown
	logger   *slog.Logger
}

// New creates a Gateway.
func New(resolver *resolve.Resolver, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		resolver: resolver,
		markdown: goldmark.New(),
		logger:   logger.With("component", "serve"),
	}
}

// Serve returns relPath from the resolved tier, or from the canonical package when
// the working copy does not have it. HTML gets relative references rewritten.
func (g *Gateway) Serve(ctx context.Context, req resolve.Request, relPath string, opts Options) (*File, error) {
	if relPath == "" || strings.HasSuffix(relPath, "/") {
		relPath += "index.html"
	}

	f, err := g.load(req, relPath)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(relPath))
	switch {
	case ext == ".md" && opts.Preview:
		var buf bytes.Buffer
		if err := g.markdown.Convert(f.Content, &buf); err != nil {
			return nil, errs.Wrap(errs.ErrIO, "rendering markdown", err)
		}
		f.Content = buf.Bytes()
		f.ContentType = "text/html; charset=utf-8"
	case (ext == ".html" || ext == ".htm") && opts.BaseURL != "":
		f.Content = RewriteHTML(f.Content, relPath, opts.BaseURL, opts.Query)
	}
	return f, nil
}

// ReadFile returns raw bytes for the editor, with the same guard and fallback as Serve.
func (g *Gateway) ReadFile(ctx context.Context, req resolve.Request, relPath string) (*File, error) {
	if strings.TrimSpace(relPath) == "" {
		return nil, errs.New(errs.ErrValidation, "file path is required")
	}
	return g.load(req, relPath)
}

func (g *Gateway) load(req resolve.Request, relPath string) (*File, error) {
	base, err := g.resolver.ResolveBaseDir(req)
	if err != nil {
		return nil, err
	}

	p, err := resolve.SafeJoin(base, relPath)
	if err != nil {
		g.logger.Warn("rejected read outside theme directory", "package", req.PackageID, "store", req.StoreID, "path", relPath)
		return nil, err
	}

	tier := TierWorkingCopy
	canonical, cerr := g.resolver.CanonicalDir(req)
	if cerr == nil && filepath.Clean(base) == filepath.Clean(canonical) {
		tier = TierCanonical
	}

	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) && tier == TierWorkingCopy && cerr == nil {
		fallback, gerr := resolve.SafeJoin(canonical, relPath)
		if gerr != nil {
			return nil, gerr
		}
		p, tier = fallback, TierCanonical
		info, err = os.Stat(p)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errs.New(errs.ErrNotFound, "file %s", relPath)
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "stat "+relPath, err)
	}
	if info.IsDir() {
		return nil, errs.New(errs.ErrInvalidRequest, "%s is a directory", relPath)
	}

	content, err := os.ReadFile(p)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIO, "reading "+relPath, err)
	}

	return &File{
		RelPath:     path.Clean(filepath.ToSlash(relPath)),
		Path:        p,
		ContentType: ContentType(relPath),
		Content:     content,
		ModTime:     info.ModTime(),
		Tier:        tier,
	}, nil
}

// ListFiles returns the sorted union of relative file paths in the resolved
// working copy and the canonical package.
func (g *Gateway) ListFiles(ctx context.Context, req resolve.Request) ([]string, error) {
	base, err := g.resolver.ResolveBaseDir(req)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	dirs := []string{base}
	if canonical, err := g.resolver.CanonicalDir(req); err == nil && filepath.Clean(canonical) != filepath.Clean(base) {
		dirs = append(dirs, canonical)
	}

	for _, dir := range dirs {
		if err := collect(dir, seen); err != nil {
			return nil, errs.Wrap(errs.ErrIO, "listing theme files", err)
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func collect(dir string, seen map[string]struct{}) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".save-") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		seen[filepath.ToSlash(rel)] = struct{}{}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
