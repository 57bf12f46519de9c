// ABOUTME: Rewrites relative asset references in theme HTML for preview routes
// ABOUTME: Also maps file extensions to Content-Type values for static assets

package serve

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var attrRef = regexp.MustCompile(`(?i)\b(src|href|action|poster)\s*=\s*("([^"]*)"|'([^']*)')`)

// RewriteHTML points relative src/href/action/poster references at baseURL so a
// preview page loads its assets through the same resolution rules. Absolute
// URLs, fragments, data: and mailto: references, and references that climb out
// of the package are left alone. query is appended to every rewritten reference.
func RewriteHTML(content []byte, relPath, baseURL string, query map[string]string) []byte {
	dir := path.Dir(filepath.ToSlash(relPath))
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return attrRef.ReplaceAllFunc(content, func(m []byte) []byte {
		sub := attrRef.FindSubmatch(m)
		quote, ref := `"`, string(sub[3])
		if sub[2][0] == '\'' {
			quote, ref = `'`, string(sub[4])
		}

		rewritten, ok := rewriteRef(ref, dir, baseURL, query)
		if !ok {
			return m
		}
		return []byte(string(sub[1]) + "=" + quote + rewritten + quote)
	})
}

func rewriteRef(ref, dir, baseURL string, query map[string]string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "/") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}

	joined := path.Clean(path.Join(dir, u.Path))
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}
	if joined == "." {
		joined = ""
	}

	q := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if query[k] != "" && q.Get(k) == "" {
			q.Set(k, query[k])
		}
	}

	out := baseURL + joined
	if enc := q.Encode(); enc != "" {
		out += "?" + enc
	}
	if u.Fragment != "" {
		out += "#" + u.Fragment
	}
	return out, true
}

var contentTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".json":  "application/json",
	".map":   "application/json",
	".md":    "text/markdown; charset=utf-8",
	".txt":   "text/plain; charset=utf-8",
	".xml":   "application/xml",
	".toml":  "application/toml",
	".svg":   "image/svg+xml",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
	".avif":  "image/avif",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
}

// ContentType returns the Content-Type for a theme file by extension.
func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
