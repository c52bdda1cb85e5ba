package processor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/resolver"
)

// linkAttrs are the URL-carrying attributes rewritten per element.
var linkAttrs = map[string]string{
	"a":    "href",
	"form": "action",
}

// keyPattern matches a dotted bundle path that leaked into rendered text.
var keyPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9]*(\.[a-zA-Z0-9]+)+$`)

// Localizer rewrites rendered HTML for a request language.
type Localizer struct {
	ignoredTags map[string]bool
	resolver    *resolver.Resolver
}

// NewLocalizer creates a localizer with the default ignored tags and
// excluded link prefixes.
func NewLocalizer(opts ...Option) *Localizer {
	l := &Localizer{
		ignoredTags: IgnoredTags,
		resolver:    resolver.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Localize parses content, sets lang and dir on the <html> element and
// prefixes root-relative links with /<lang>. An empty dir is derived from
// the language.
//
// Subtrees marked data-no-localize are left alone.
func (l *Localizer) Localize(content string, lang dramabox.Language, dir string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", &dramabox.ProcessorError{
			Message:     "failed to parse HTML",
			Cause:       err,
			ContentType: "html",
		}
	}

	if dir == "" {
		dir = dramabox.GetDirection(lang)
	}
	doc.Find("html").SetAttr("lang", dramabox.ToHTMLLang(lang)).SetAttr("dir", dir)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if hasAttr(n, "data-no-localize") {
				return
			}
			if attr, ok := linkAttrs[n.Data]; ok {
				for i := range n.Attr {
					if n.Attr[i].Key == attr {
						n.Attr[i].Val = l.LocalizeURL(lang, n.Attr[i].Val)
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	doc.Each(func(i int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			walk(n)
		}
	})

	out, err := doc.Html()
	if err != nil {
		return "", &dramabox.ProcessorError{
			Message:     "failed to serialize HTML",
			Cause:       err,
			ContentType: "html",
		}
	}
	return out, nil
}

// LocalizeURL prefixes a root-relative href with /<lang>. Absolute,
// protocol-relative, excluded (API, static, files) and already
// language-prefixed targets are returned unchanged.
func (l *Localizer) LocalizeURL(lang dramabox.Language, href string) string {
	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return href
	}

	path, rest := href, ""
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		path, rest = href[:i], href[i:]
	}

	if l.resolver.Excluded(path) {
		return href
	}
	if _, ok := resolver.FromPath(path); ok {
		return href
	}

	if path == "/" {
		return "/" + string(lang) + rest
	}
	return "/" + string(lang) + href
}

// UnresolvedKeys returns visible text nodes that look like dotted bundle
// paths, which is what a translation lookup produces when a key is missing
// from every bundle. Duplicates are reported once, in document order.
func (l *Localizer) UnresolvedKeys(content string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, &dramabox.ProcessorError{
			Message:     "failed to parse HTML",
			Cause:       err,
			ContentType: "html",
		}
	}

	var keys []string
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && l.ignoredTags[strings.ToLower(n.Data)] {
			return
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if keyPattern.MatchString(text) && !seen[text] {
				seen[text] = true
				keys = append(keys, text)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	doc.Each(func(i int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			walk(n)
		}
	})

	return keys, nil
}

func hasAttr(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}
