// Package dom is the in-memory document the component runtime renders
// into. Nodes are golang.org/x/net/html nodes; the Document adds what a
// browser would: event listeners, shadow roots, and custom-element
// connect/disconnect notifications.
//
// A Document is not safe for concurrent use. It belongs to the goroutine
// running its event loop.
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Upgrader is notified when elements enter or leave the document.
//
// Connected reports whether it took ownership of the element (upgraded it);
// the document then does not walk into that element's children, since the
// upgraded element renders them itself.
type Upgrader interface {
	Connected(n *html.Node) (bool, error)
	Disconnected(n *html.Node)
}

// Document owns a node tree and everything attached to it.
type Document struct {
	root      *html.Node
	head      *html.Node
	body      *html.Node
	listeners map[*html.Node][]listener
	lastID    ListenerID
	shadows   map[*html.Node]*html.Node
	hosts     map[*html.Node]*html.Node
	upgrader  Upgrader
}

// NewDocument creates an empty HTML document.
func NewDocument() *Document {
	root := &html.Node{Type: html.DocumentNode}
	htmlEl := &html.Node{Type: html.ElementNode, Data: "html", DataAtom: atom.Html}
	head := &html.Node{Type: html.ElementNode, Data: "head", DataAtom: atom.Head}
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	root.AppendChild(htmlEl)
	htmlEl.AppendChild(head)
	htmlEl.AppendChild(body)

	return &Document{
		root:      root,
		head:      head,
		body:      body,
		listeners: make(map[*html.Node][]listener),
		shadows:   make(map[*html.Node]*html.Node),
		hosts:     make(map[*html.Node]*html.Node),
	}
}

// SetUpgrader installs the custom-element upgrader.
func (d *Document) SetUpgrader(u Upgrader) {
	d.upgrader = u
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Head returns the head element.
func (d *Document) Head() *html.Node { return d.head }

// Body returns the body element.
func (d *Document) Body() *html.Node { return d.body }

// CreateElement creates a detached element.
func (d *Document) CreateElement(tag string, attrs ...html.Attribute) *html.Node {
	tag = strings.ToLower(tag)
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     append([]html.Attribute(nil), attrs...),
	}
}

// CreateText creates a detached text node.
func (d *Document) CreateText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// IsConnected reports whether n is reachable from the document root,
// crossing shadow roots to their hosts.
func (d *Document) IsConnected(n *html.Node) bool {
	for n != nil {
		if n == d.root {
			return true
		}
		if n.Parent == nil {
			n = d.hosts[n]
			continue
		}
		n = n.Parent
	}
	return false
}

// AppendChild appends child to parent, moving it if it already has a
// parent. Elements that become connected are reported to the upgrader.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child before ref, or at the end when ref is nil.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if err := checkContainer(parent); err != nil {
		return err
	}
	if ref != nil && ref.Parent != parent {
		return fmt.Errorf("dom: reference node is not a child of <%s>", parent.Data)
	}
	if child.Parent != nil {
		if err := d.RemoveChild(child.Parent, child); err != nil {
			return err
		}
	}

	parent.InsertBefore(child, ref)
	if d.IsConnected(parent) {
		return d.connect(child)
	}
	return nil
}

// RemoveChild detaches child from parent. Connected elements in the removed
// subtree are reported to the upgrader after removal.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	if child.Parent != parent {
		return fmt.Errorf("dom: node is not a child of <%s>", parent.Data)
	}
	wasConnected := d.IsConnected(parent)
	parent.RemoveChild(child)
	if wasConnected {
		d.disconnect(child)
	}
	return nil
}

// ReplaceChild replaces old with replacement under parent.
func (d *Document) ReplaceChild(parent, replacement, old *html.Node) error {
	if old.Parent != parent {
		return fmt.Errorf("dom: node is not a child of <%s>", parent.Data)
	}
	if replacement.Parent != nil {
		if err := d.RemoveChild(replacement.Parent, replacement); err != nil {
			return err
		}
	}

	next := old.NextSibling
	if err := d.RemoveChild(parent, old); err != nil {
		return err
	}
	return d.InsertBefore(parent, replacement, next)
}

// ClearChildren removes every child of n.
func (d *Document) ClearChildren(n *html.Node) error {
	for n.FirstChild != nil {
		if err := d.RemoveChild(n, n.FirstChild); err != nil {
			return err
		}
	}
	return nil
}

// SetInnerHTML replaces the children of n with the parsed markup.
func (d *Document) SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := ParseFragment(n, markup)
	if err != nil {
		return err
	}
	if err := d.ClearChildren(n); err != nil {
		return err
	}
	for _, c := range nodes {
		if err := d.AppendChild(n, c); err != nil {
			return err
		}
	}
	return nil
}

// ParseFragment parses markup as children of context. Shadow roots and the
// document node parse as body content.
func ParseFragment(context *html.Node, markup string) ([]*html.Node, error) {
	if context == nil || context.Type != html.ElementNode {
		context = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

// AttachShadow gives host a shadow root and returns it.
func (d *Document) AttachShadow(host *html.Node) (*html.Node, error) {
	if host.Type != html.ElementNode {
		return nil, fmt.Errorf("dom: cannot attach shadow root to non-element")
	}
	if _, ok := d.shadows[host]; ok {
		return nil, fmt.Errorf("dom: <%s> already has a shadow root", host.Data)
	}
	shadow := &html.Node{Type: html.DocumentNode}
	d.shadows[host] = shadow
	d.hosts[shadow] = host
	return shadow, nil
}

// ShadowRoot returns host's shadow root or nil.
func (d *Document) ShadowRoot(host *html.Node) *html.Node {
	return d.shadows[host]
}

// Host returns the host of a shadow root or nil.
func (d *Document) Host(shadow *html.Node) *html.Node {
	return d.hosts[shadow]
}

// CloneNode copies n. Clones carry no listeners and no shadow root.
func (d *Document) CloneNode(n *html.Node, deep bool) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	if deep {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			c.AppendChild(d.CloneNode(child, true))
		}
	}
	return c
}

func (d *Document) connect(n *html.Node) error {
	if d.upgrader == nil {
		return nil
	}
	var err error
	Walk(n, func(el *html.Node) bool {
		if err != nil || el.Type != html.ElementNode {
			return err == nil
		}
		upgraded, cerr := d.upgrader.Connected(el)
		if cerr != nil {
			err = cerr
			return false
		}
		return !upgraded
	})
	return err
}

func (d *Document) disconnect(n *html.Node) {
	if d.upgrader == nil {
		return
	}
	// Collect first: disconnect callbacks rewrite their own subtrees.
	var elements []*html.Node
	var visit func(*html.Node)
	visit = func(el *html.Node) {
		if el.Type == html.ElementNode {
			elements = append(elements, el)
			if shadow := d.shadows[el]; shadow != nil {
				for c := shadow.FirstChild; c != nil; c = c.NextSibling {
					visit(c)
				}
			}
		}
		for c := el.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)

	for _, el := range elements {
		d.upgrader.Disconnected(el)
	}
}

func checkContainer(n *html.Node) error {
	if n == nil || (n.Type != html.ElementNode && n.Type != html.DocumentNode) {
		return fmt.Errorf("dom: parent must be an element or root node")
	}
	return nil
}
