// Package inject inserts HTML fragments into the <head> and <body> of an
// HTML document without disturbing the rest of its markup.
package inject

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dnswlt/miixkit/internal/errs"
	"golang.org/x/net/html"
)

// Injector prepends Head fragments to the document's <head> and appends
// Body fragments to its <body>.
type Injector struct {
	Head []string
	Body []string
}

// Render parses src, injects the fragments and returns the serialized document.
func (in *Injector) Render(src []byte) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(src))
	if err != nil {
		return nil, errs.WrapPlugin(err, "could not parse HTML from your homepage")
	}
	if err := in.Inject(doc); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("could not serialize homepage: %w", err)
	}
	return buf.Bytes(), nil
}

// Inject modifies the document tree doc in place.
//
// Body fragments are skipped if <body> already has a <script> child, so a
// homepage that loads its own scripts does not load them twice.
func (in *Injector) Inject(doc *html.Node) error {
	head := findElement(doc, "html", "head")
	if head == nil {
		return errs.Pluginf("your homepage is missing a <head> section")
	}
	if err := prepend(head, in.Head); err != nil {
		return err
	}

	body := findElement(doc, "html", "body")
	if body == nil {
		return errs.Pluginf("your homepage is missing a <body> section")
	}
	if findElement(body, "script") != nil {
		return nil
	}
	return appendTo(body, in.Body)
}

func prepend(parent *html.Node, fragments []string) error {
	ref := parent.FirstChild
	for _, f := range fragments {
		nodes, err := parseFragment(parent, f)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			parent.InsertBefore(n, ref)
		}
	}
	return nil
}

func appendTo(parent *html.Node, fragments []string) error {
	for _, f := range fragments {
		nodes, err := parseFragment(parent, f)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			parent.AppendChild(n)
		}
	}
	return nil
}

// parseFragment parses src as it would appear inside parent.
func parseFragment(parent *html.Node, src string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(src), &html.Node{
		Type:     html.ElementNode,
		Data:     parent.Data,
		DataAtom: parent.DataAtom,
	})
	if err != nil {
		return nil, errs.WrapPlugin(err, "invalid HTML fragment")
	}
	return nodes, nil
}

// findElement follows path from n, each step selecting the first child
// element with the given tag name. It returns nil if any step fails.
func findElement(n *html.Node, path ...string) *html.Node {
	for _, tag := range path {
		var next *html.Node
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		n = next
	}
	return n
}
