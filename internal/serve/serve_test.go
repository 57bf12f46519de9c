// ABOUTME: Tests for tier fallback, traversal rejection, and preview rewriting
// ABOUTME: Builds canonical packages and working copies under t.TempDir

package serve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/vitrine/internal/errs"
	"github.com/2389/vitrine/internal/install"
	"github.com/2389/vitrine/internal/resolve"
	"github.com/2389/vitrine/internal/store"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func setup(t *testing.T) (*Gateway, resolve.Target, install.Layout) {
	t.Helper()
	layout := install.Layout{Root: t.TempDir()}
	code := filepath.Join(layout.ThemesDir(), "aurora", "unzippedTheme")
	writeFile(t, filepath.Join(code, "index.html"), `<link href="css/site.css"><img src='img/logo.png'>`)
	writeFile(t, filepath.Join(code, "css", "site.css"), "body{}")
	writeFile(t, filepath.Join(code, "README.md"), "# Aurora")

	r := resolve.New(layout, store.NewMockStore(), nil)
	return New(r, nil), resolve.Target{PackageID: "aurora", CodeDir: code}, layout
}

func TestServe_CanonicalWithoutContext(t *testing.T) {
	g, target, _ := setup(t)

	f, err := g.Serve(context.Background(), resolve.Request{Target: target}, "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "index.html", f.RelPath)
	assert.Equal(t, TierCanonical, f.Tier)
	assert.Equal(t, "text/html; charset=utf-8", f.ContentType)
}

func TestServe_WorkingCopyShadowsCanonical(t *testing.T) {
	g, target, layout := setup(t)
	wc := install.Nested(layout.WorkingCopy("S1", "aurora"))
	writeFile(t, filepath.Join(wc, "css", "site.css"), "body{color:red}")

	req := resolve.Request{Target: target, StoreID: "S1"}
	f, err := g.Serve(context.Background(), req, "css/site.css", Options{})
	require.NoError(t, err)
	assert.Equal(t, "body{color:red}", string(f.Content))
	assert.Equal(t, TierWorkingCopy, f.Tier)

	// Untouched files fall back to the package
	f, err = g.Serve(context.Background(), req, "README.md", Options{})
	require.NoError(t, err)
	assert.Equal(t, "# Aurora", string(f.Content))
	assert.Equal(t, TierCanonical, f.Tier)
}

func TestServe_Errors(t *testing.T) {
	g, target, _ := setup(t)
	ctx := context.Background()
	req := resolve.Request{Target: target, StoreID: "S1"}

	_, err := g.Serve(ctx, req, "../../../etc/passwd", Options{})
	assert.ErrorIs(t, err, errs.ErrAccessDenied)

	_, err = g.Serve(ctx, req, "missing.css", Options{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = g.Serve(ctx, req, "css", Options{})
	assert.ErrorIs(t, err, errs.ErrInvalidRequest)

	_, err = g.ReadFile(ctx, req, " ")
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestServe_MarkdownPreview(t *testing.T) {
	g, target, _ := setup(t)

	f, err := g.Serve(context.Background(), resolve.Request{Target: target}, "README.md", Options{Preview: true})
	require.NoError(t, err)
	assert.Contains(t, string(f.Content), "<h1>Aurora</h1>")
	assert.Equal(t, "text/html; charset=utf-8", f.ContentType)

	f, err = g.ReadFile(context.Background(), resolve.Request{Target: target}, "README.md")
	require.NoError(t, err)
	assert.Equal(t, "# Aurora", string(f.Content), "editor reads stay raw")
}

func TestServe_RewritesPreviewHTML(t *testing.T) {
	g, target, _ := setup(t)

	f, err := g.Serve(context.Background(), resolve.Request{Target: target, StoreID: "S1"}, "index.html", Options{
		BaseURL: "/preview/theme/aurora/",
		Query:   map[string]string{"store_id": "S1"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(f.Content), `href="/preview/theme/aurora/css/site.css?store_id=S1"`)
	assert.Contains(t, string(f.Content), `src='/preview/theme/aurora/img/logo.png?store_id=S1'`)
}

func TestRewriteHTML(t *testing.T) {
	tests := []struct {
		name string
		from string
		in   string
		want string
	}{
		{"relative", "index.html", `<a href="about.html">`, `<a href="/p/about.html">`},
		{"nested page", "pages/index.html", `<img src="../img/x.png">`, `<img src="/p/img/x.png">`},
		{"keeps fragment", "index.html", `<a href="faq.html#top">`, `<a href="/p/faq.html#top">`},
		{"absolute url", "index.html", `<a href="https://example.com/x">`, `<a href="https://example.com/x">`},
		{"protocol relative", "index.html", `<script src="//cdn.example.com/x.js">`, `<script src="//cdn.example.com/x.js">`},
		{"root relative", "index.html", `<a href="/cart">`, `<a href="/cart">`},
		{"fragment only", "index.html", `<a href="#main">`, `<a href="#main">`},
		{"data uri", "index.html", `<img src="data:image/png;base64,AA==">`, `<img src="data:image/png;base64,AA==">`},
		{"mailto", "index.html", `<a href="mailto:a@b.c">`, `<a href="mailto:a@b.c">`},
		{"escapes package", "index.html", `<a href="../../secret">`, `<a href="../../secret">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteHTML([]byte(tt.in), tt.from, "/p", nil)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestRewriteHTML_MergesQuery(t *testing.T) {
	got := RewriteHTML([]byte(`<a href="x.html?page=2">`), "index.html", "/p/", map[string]string{"store_id": "S1", "actor": ""})
	assert.Equal(t, `<a href="/p/x.html?page=2&store_id=S1">`, string(got))
}

func TestListFiles_UnionOfTiers(t *testing.T) {
	g, target, layout := setup(t)
	wc := install.Nested(layout.WorkingCopy("S1", "aurora"))
	writeFile(t, filepath.Join(wc, "css", "site.css"), "edited")
	writeFile(t, filepath.Join(wc, "extra.js"), "x")
	writeFile(t, filepath.Join(wc, ".save-123"), "partial")

	files, err := g.ListFiles(context.Background(), resolve.Request{Target: target, StoreID: "S1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "css/site.css", "extra.js", "index.html"}, files)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/css; charset=utf-8", ContentType("a/B.CSS"))
	assert.Equal(t, "font/woff2", ContentType("f.woff2"))
	assert.Equal(t, "application/octet-stream", ContentType("blob.bin"))
}
