package personalize

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

const (
	fetchTimeout   = 10 * time.Second
	maxContentLen  = 8000
	browserUA      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	cacheTTL       = 24 * time.Hour
	cacheKeyPrefix = "website:"
)

// containers tried in order when extracting the page's main copy
var contentSelectors = []string{"main", ".content", "#content", ".main-content", "article", ".about", ".hero", ".intro"}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Fetcher downloads and condenses a contact's website into a text block
// usable as AI context. A nil redis client disables caching.
type Fetcher struct {
	client *http.Client
	cache  *redis.Client
	logger *logrus.Logger
}

func NewFetcher(cache *redis.Client, logger *logrus.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: fetchTimeout},
		cache:  cache,
		logger: logger,
	}
}

// FetchWebsiteContent returns a "Title / Description / Content" summary of
// the given site, or "" when the site is unreachable or unparseable. It
// never returns an error: a missing website must not block a send.
func (f *Fetcher) FetchWebsiteContent(ctx context.Context, rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}
	url := normalizeURL(rawURL)

	if f.cache != nil {
		if cached, err := f.cache.Get(ctx, cacheKeyPrefix+url).Result(); err == nil {
			return cached
		}
	}

	content := f.fetch(ctx, url)
	if content != "" && f.cache != nil {
		if err := f.cache.Set(ctx, cacheKeyPrefix+url, content, cacheTTL).Err(); err != nil {
			f.logger.WithError(err).Debug("website cache write failed")
		}
	}
	return content
}

func (f *Fetcher) fetch(ctx context.Context, url string) string {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", browserUA)

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.WithFields(logrus.Fields{"url": url, "error": err.Error()}).Debug("website fetch failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return ""
	}

	title := collapse(textOf(findTag(doc, "title")))
	desc := collapse(metaDescription(doc))
	body := collapse(mainContent(doc))

	var parts []string
	if title != "" {
		parts = append(parts, "Title: "+title)
	}
	if desc != "" {
		parts = append(parts, "Description: "+desc)
	}
	if body != "" {
		parts = append(parts, "Content: "+body)
	}
	out := strings.Join(parts, "\n\n")
	if len(out) > maxContentLen {
		out = out[:maxContentLen]
	}
	return out
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// mainContent tries the selector priority list, then falls back to the
// first 2000 characters of the whole body.
func mainContent(doc *html.Node) string {
	for _, sel := range contentSelectors {
		if n := findSelector(doc, sel); n != nil {
			if txt := textOf(n); strings.TrimSpace(txt) != "" {
				return txt
			}
		}
	}
	body := textOf(findTag(doc, "body"))
	if len(body) > 2000 {
		body = body[:2000]
	}
	return body
}

func metaDescription(doc *html.Node) string {
	var result string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			var name, content string
			for _, a := range n.Attr {
				switch a.Key {
				case "name", "property":
					name = strings.ToLower(a.Val)
				case "content":
					content = a.Val
				}
			}
			if name == "description" || name == "og:description" {
				result = content
				return false
			}
		}
		return true
	})
	return result
}

func findTag(doc *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

// findSelector supports the tag, .class, and #id forms used in the
// selector priority list.
func findSelector(doc *html.Node, sel string) *html.Node {
	switch {
	case strings.HasPrefix(sel, "."):
		return findByAttr(doc, "class", sel[1:])
	case strings.HasPrefix(sel, "#"):
		return findByAttr(doc, "id", sel[1:])
	default:
		return findTag(doc, sel)
	}
}

func findByAttr(doc *html.Node, attr, value string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		for _, a := range n.Attr {
			if a.Key != attr {
				continue
			}
			if attr == "class" {
				for _, cls := range strings.Fields(a.Val) {
					if cls == value {
						found = n
						return false
					}
				}
			} else if a.Val == value {
				found = n
				return false
			}
		}
		return true
	})
	return found
}

// textOf concatenates text nodes, skipping script and style subtrees.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var rec func(*html.Node)
	rec = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			rec(c)
		}
	}
	rec(n)
	return sb.String()
}

func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}
