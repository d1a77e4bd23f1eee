// Package selector answers structural queries against parsed HTML documents.
//
// A document is parsed once with golang.org/x/net/html and the same node tree
// serves two query dialects: CSS selectors (goquery/cascadia) and XPath
// (antchfx/htmlquery). Callers describe what they want with a Query and get
// back trimmed strings; they never touch nodes.
package selector

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Dialect names the query language of a Query expression.
type Dialect int

// Supported dialects.
const (
	CSS Dialect = iota
	XPath
)

func (d Dialect) String() string {
	switch d {
	case CSS:
		return "css"
	case XPath:
		return "xpath"
	default:
		return fmt.Sprintf("dialect(%d)", int(d))
	}
}

// Query locates nodes by structural pattern. When Attr is empty the text
// content of each match is returned, otherwise the named attribute.
type Query struct {
	Dialect Dialect
	Expr    string
	Attr    string
}

// CSSText builds a CSS query returning text content.
func CSSText(expr string) Query { return Query{Dialect: CSS, Expr: expr} }

// CSSAttr builds a CSS query returning the named attribute.
func CSSAttr(expr, attr string) Query { return Query{Dialect: CSS, Expr: expr, Attr: attr} }

// XPathText builds an XPath query returning text content.
func XPathText(expr string) Query { return Query{Dialect: XPath, Expr: expr} }

// XPathAttr builds an XPath query returning the named attribute of each
// matched element.
func XPathAttr(expr, attr string) Query { return Query{Dialect: XPath, Expr: expr, Attr: attr} }

func (q Query) String() string {
	if q.Attr == "" {
		return fmt.Sprintf("%s(%s)", q.Dialect, q.Expr)
	}
	return fmt.Sprintf("%s(%s)@%s", q.Dialect, q.Expr, q.Attr)
}

// Document is the read-only query surface consumed by extractors.
type Document interface {
	// Select returns every non-blank match in document order, or an error
	// when the expression itself is invalid.
	Select(q Query) ([]string, error)
	// All is Select with invalid expressions treated as "no match".
	All(q Query) []string
	// First returns the first non-blank match or "".
	First(q Query) string
}

// HTML is a Document backed by a parsed node tree.
type HTML struct {
	root *html.Node
	gq   *goquery.Document
}

var _ Document = (*HTML)(nil)

// Parse reads an HTML document or fragment. Fragments are wrapped in the
// usual html/head/body scaffolding by the parser.
func Parse(r io.Reader) (*HTML, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTML{root: root, gq: goquery.NewDocumentFromNode(root)}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(markup string) (*HTML, error) {
	return Parse(strings.NewReader(markup))
}

// Select implements Document.
func (d *HTML) Select(q Query) ([]string, error) {
	switch q.Dialect {
	case CSS:
		return d.selectCSS(q)
	case XPath:
		return d.selectXPath(q)
	default:
		return nil, fmt.Errorf("unsupported dialect %s", q.Dialect)
	}
}

// All implements Document.
func (d *HTML) All(q Query) []string {
	values, err := d.Select(q)
	if err != nil {
		return []string{}
	}
	return values
}

// First implements Document.
func (d *HTML) First(q Query) string {
	values := d.All(q)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (d *HTML) selectCSS(q Query) ([]string, error) {
	sel, err := cascadia.Compile(q.Expr)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector %q: %w", q.Expr, err)
	}
	out := []string{}
	d.gq.FindMatcher(sel).Each(func(_ int, s *goquery.Selection) {
		var raw string
		if q.Attr == "" {
			raw = s.Text()
		} else {
			v, ok := s.Attr(q.Attr)
			if !ok {
				return
			}
			raw = v
		}
		out = appendTrimmed(out, raw)
	})
	return out, nil
}

func (d *HTML) selectXPath(q Query) ([]string, error) {
	nodes, err := htmlquery.QueryAll(d.root, q.Expr)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath %q: %w", q.Expr, err)
	}
	out := []string{}
	for _, n := range nodes {
		var raw string
		if q.Attr == "" {
			raw = htmlquery.InnerText(n)
		} else {
			if !hasAttr(n, q.Attr) {
				continue
			}
			raw = htmlquery.SelectAttr(n, q.Attr)
		}
		out = appendTrimmed(out, raw)
	}
	return out, nil
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func appendTrimmed(out []string, raw string) []string {
	if v := strings.TrimSpace(raw); v != "" {
		return append(out, v)
	}
	return out
}
