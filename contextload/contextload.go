// Package contextload ingests background material (files, directories,
// web pages) into plain text for the session's context bundle.
package contextload

import (
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"glean/log"
)

const (
	userAgent     = "glean-context/0.1"
	urlTimeout    = 15 * time.Second
	fileReadLimit = 200_000
	urlReadLimit  = 200_000
	combinedCap   = 40_000
	labelMax      = 80
)

var acceptedExts = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
}

var httpClient = &http.Client{Timeout: urlTimeout}

// CanonicalID maps a user-entered source to the identifier used for
// ingest-once bookkeeping: URLs as typed, paths expanded and absolute.
// Blank input yields "".
func CanonicalID(raw string) string {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return ""
	}
	if isURL(candidate) {
		return candidate
	}
	if abs := absPath(candidate); abs != "" {
		return abs
	}
	return candidate
}

// Collect loads every source and returns the combined labeled text plus
// the labels in ingest order. Sources that cannot be read contribute an
// inline bracketed message rather than failing the whole batch; missing
// paths contribute nothing.
func Collect(sources []string) (string, []string) {
	seen := make(map[string]bool)
	var texts []string
	var labels []string

	add := func(label, body string) {
		if body == "" {
			return
		}
		labels = append(labels, label)
		texts = append(texts, "\n\n# "+label+"\n\n"+body)
	}

	for _, raw := range sources {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if isURL(raw) {
			if seen[raw] {
				continue
			}
			seen[raw] = true
			add(labelForURL(raw), readURL(raw))
			continue
		}
		path := absPath(raw)
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				if !acceptedExts[strings.ToLower(filepath.Ext(p))] || seen[p] {
					return nil
				}
				seen[p] = true
				add(filepath.Base(p), readFile(p))
				return nil
			})
			continue
		}
		if seen[path] {
			continue
		}
		seen[path] = true
		if !acceptedExts[strings.ToLower(filepath.Ext(path))] {
			add(filepath.Base(path), fmt.Sprintf("[Unsupported context file %s; use .txt or .md]", filepath.Base(path)))
			continue
		}
		add(filepath.Base(path), readFile(path))
	}

	combined := strings.Join(texts, "")
	if len(combined) > combinedCap {
		combined = combined[:combinedCap]
	}
	return strings.TrimSpace(combined), labels
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}

func absPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return ""
	}
	return abs
}

func labelForURL(rawURL string) string {
	label := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		label = u.Host + strings.TrimRight(u.Path, "/")
	}
	if len(label) > labelMax {
		return label[:labelMax-3] + "..."
	}
	return label
}

func readFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Sprintf("[Could not read text file %s: %v]", filepath.Base(path), err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, fileReadLimit))
	if err != nil {
		return fmt.Sprintf("[Could not read text file %s: %v]", filepath.Base(path), err)
	}
	return string(data)
}

func readURL(rawURL string) string {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Sprintf("[Could not fetch %s: %v]", rawURL, err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := httpClient.Do(req)
	if err != nil {
		log.Warnf("context fetch: %v", err)
		return fmt.Sprintf("[Could not fetch %s: %v]", rawURL, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, urlReadLimit+4096))
	if len(body) > urlReadLimit {
		body = body[:urlReadLimit]
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = resp.Status
		}
		log.Warnf("context fetch %s: %s", rawURL, resp.Status)
		return fmt.Sprintf("[HTTP error for %s: %s]", rawURL, msg)
	}

	ct := strings.ToLower(resp.Header.Get("Content-Type"))
	text := string(body)
	switch {
	case strings.Contains(ct, "html"),
		strings.Contains(ct, "text") && strings.Contains(text, "<") && strings.Contains(text, ">"):
		text = htmlToText(text)
	case ct != "" && !strings.Contains(ct, "text"):
		return fmt.Sprintf("[Unsupported content type for %s: %s]", rawURL, ct)
	}
	if len(text) > urlReadLimit {
		text = text[:urlReadLimit]
	}
	return text
}

var (
	reScript   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reHead     = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	reBreak    = regexp.MustCompile(`(?is)</?(br|p|div|li|tr|table|h[1-6]|section|article)[^>]*>`)
	reTag      = regexp.MustCompile(`<[^>]+>`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
	reSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// htmlToText is a best-effort page-to-text conversion: scripts, styles
// and the head are dropped, block-level tags become newlines, the rest
// of the markup is stripped and entities unescaped.
func htmlToText(s string) string {
	cleaned := reScript.ReplaceAllString(s, " ")
	cleaned = reStyle.ReplaceAllString(cleaned, " ")
	cleaned = reHead.ReplaceAllString(cleaned, " ")
	cleaned = reBreak.ReplaceAllString(cleaned, "\n")
	cleaned = reTag.ReplaceAllString(cleaned, " ")
	text := html.UnescapeString(cleaned)
	text = strings.ReplaceAll(text, "\r", "\n")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	text = reSpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
