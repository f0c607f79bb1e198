// Package extract turns an HTML document into indexable text, a title, and its
// raw outbound links. Malformed markup never fails extraction; missing parts
// simply contribute nothing.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result is the extracted content of one page.
type Result struct {
	// Text holds the title fallback (when synthesized), meta description and
	// keywords, then the document text, joined by newlines.
	Text        string
	Title       string
	Description string
	Keywords    []string
	// Links are raw href values in document order, unresolved.
	Links []string
}

var ignoredElements = map[atom.Atom]bool{
	atom.Template: true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Pre:      true,
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.Div: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Table: true, atom.Main: true, atom.Img: true, atom.Hr: true, atom.Br: true,
	atom.Section: true, atom.Nav: true, atom.Article: true, atom.Aside: true, atom.Footer: true,
	atom.Form: true, atom.Ul: true, atom.Ol: true,
}

var (
	tagLike        = regexp.MustCompile(`<[^<>]+>`)
	pathSeparators = regexp.MustCompile(`[/_\-+]`)
	trailingExt    = regexp.MustCompile(`\.[A-Za-z0-9]+$`)
)

// Parse extracts content from body, fetched from pageURL.
func Parse(body []byte, pageURL *url.URL) Result {
	var res Result
	var text []string

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		res.Title = fallbackTitle(pageURL)
		res.Text = res.Title
		return res
	}

	if title := doc.Find("title").First(); title.Length() > 0 && strings.TrimSpace(title.Text()) != "" {
		res.Title = strings.TrimSpace(title.Text())
	} else {
		res.Title = fallbackTitle(pageURL)
		text = append(text, res.Title)
	}

	doc.Find("meta").Each(func(_ int, meta *goquery.Selection) {
		name, _ := meta.Attr("name")
		content, _ := meta.Attr("content")
		if content == "" {
			return
		}
		switch strings.ToLower(name) {
		case "description":
			res.Description = tagLike.ReplaceAllString(content, "")
			text = append(text, res.Description)
		case "keywords":
			for _, kw := range strings.Split(content, ",") {
				res.Keywords = append(res.Keywords, kw)
				text = append(text, kw)
			}
		}
	})

	for _, n := range doc.Nodes {
		text = append(text, strings.TrimSpace(nodeText(n)))
	}
	res.Text = strings.Join(text, "\n")

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			res.Links = append(res.Links, href)
		}
	})
	return res
}

// nodeText walks n depth-first. Text nodes are whitespace-collapsed, children
// are joined by single spaces, and block elements end with a line break.
func nodeText(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		return strings.Join(strings.Fields(n.Data), " ")
	case html.CommentNode, html.DoctypeNode:
		return ""
	case html.ElementNode:
		if ignoredElements[n.DataAtom] {
			return ""
		}
	}

	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if s := nodeText(c); strings.TrimSpace(s) != "" {
			parts = append(parts, s)
		}
	}
	out := strings.Join(parts, " ")
	out = strings.ReplaceAll(out, "\n\n\n", "\n")
	out = strings.ReplaceAll(out, "\n ", "\n")
	if n.Type == html.ElementNode && blockElements[n.DataAtom] {
		out += "\n"
	}
	return out
}

// fallbackTitle derives a title from the URL path, or the hostname when the
// path has nothing usable.
func fallbackTitle(pageURL *url.URL) string {
	if pageURL == nil {
		return ""
	}
	p := pathSeparators.ReplaceAllString(pageURL.Path, " ")
	p = strings.TrimSpace(trailingExt.ReplaceAllString(strings.TrimSpace(p), ""))
	if p != "" {
		return p
	}
	return pageURL.Hostname()
}
