package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ComposedClone deep-copies n with every shadow root materialized as a
// leading <template shadowrootmode="open"> child of its host. visit, when
// not nil, sees each original element next to its copy.
func (d *Document) ComposedClone(n *html.Node, visit func(orig, clone *html.Node)) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if visit != nil && n.Type == html.ElementNode {
		visit(n, c)
	}

	if shadow := d.shadows[n]; shadow != nil {
		tpl := &html.Node{
			Type:     html.ElementNode,
			Data:     "template",
			DataAtom: atom.Template,
			Attr:     []html.Attribute{{Key: "shadowrootmode", Val: "open"}},
		}
		for child := shadow.FirstChild; child != nil; child = child.NextSibling {
			tpl.AppendChild(d.ComposedClone(child, visit))
		}
		c.AppendChild(tpl)
	}

	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(d.ComposedClone(child, visit))
	}
	return c
}

// OuterHTML serializes n, shadow roots included.
func (d *Document) OuterHTML(n *html.Node) string {
	return Render(d.ComposedClone(n, nil))
}

// InnerHTML serializes the children of n, shadow roots included.
func (d *Document) InnerHTML(n *html.Node) string {
	return RenderChildren(d.ComposedClone(n, nil))
}

// Render serializes n as is.
func Render(n *html.Node) string {
	var b strings.Builder
	if n.Type == html.DocumentNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			_ = html.Render(&b, c)
		}
		return b.String()
	}
	_ = html.Render(&b, n)
	return b.String()
}

// RenderChildren serializes the children of n.
func RenderChildren(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&b, c)
	}
	return b.String()
}
