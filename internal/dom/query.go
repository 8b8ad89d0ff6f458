package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Walk visits n and its descendants in document order. Returning false from
// fn skips the children of the node just visited.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Find returns every element under n (n included) matching pred.
func Find(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	Walk(n, func(el *html.Node) bool {
		if el.Type == html.ElementNode && pred(el) {
			out = append(out, el)
		}
		return true
	})
	return out
}

// FindTag returns every element under n with the given tag name.
func FindTag(n *html.Node, tag string) []*html.Node {
	tag = strings.ToLower(tag)
	return Find(n, func(el *html.Node) bool { return el.Data == tag })
}

// FindAttr returns the first element under n whose attribute key equals
// value.
func FindAttr(n *html.Node, key, value string) *html.Node {
	var found *html.Node
	Walk(n, func(el *html.Node) bool {
		if found != nil {
			return false
		}
		if v, ok := GetAttr(el, key); ok && v == value && el.Type == html.ElementNode {
			found = el
			return false
		}
		return true
	})
	return found
}

// GetAttr returns the value of attribute key on n.
func GetAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets attribute key on n.
func SetAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

// RemoveAttr deletes attribute key from n.
func RemoveAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// Attrs returns n's attributes as a map.
func Attrs(n *html.Node) map[string]string {
	out := make(map[string]string, len(n.Attr))
	for _, a := range n.Attr {
		out[a.Key] = a.Val
	}
	return out
}

// TextContent concatenates every text node under n.
func TextContent(n *html.Node) string {
	var b strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
