// Package wildcard implements the path-segment trie used to classify a
// destination as large-message or ordinary. No example in the retrieval
// pack carries a ready-made wildcard path trie as an importable library
// (go-chi's router is an HTTP mux, not a general path-segment matcher), so
// this one is hand-rolled on the standard library; see DESIGN.md.
package wildcard

import "strings"

const wildcardSegment = "*"

type node struct {
	children map[string]*node
	terminal bool
}

func newNode() *node { return &node{children: make(map[string]*node)} }

// Matcher is a trie over '/'-delimited path segments with a wildcard node.
type Matcher struct {
	root *node
}

// New builds a Matcher from the given path patterns (large-message
// destinations, e.g. "/user/*/large").
func New(patterns ...string) *Matcher {
	m := &Matcher{root: newNode()}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

func (m *Matcher) Add(pattern string) {
	n := m.root
	for _, seg := range segments(pattern) {
		child, ok := n.children[seg]
		if !ok {
			child = newNode()
			n.children[seg] = child
		}
		n = child
	}
	n.terminal = true
}

// Matches reports whether path is covered by any inserted pattern.
func (m *Matcher) Matches(path string) bool {
	if m == nil {
		return false
	}
	return match(m.root, segments(path))
}

func match(n *node, segs []string) bool {
	if len(segs) == 0 {
		return n.terminal
	}
	if wc, ok := n.children[wildcardSegment]; ok {
		if match(wc, segs[1:]) {
			return true
		}
	}
	if child, ok := n.children[segs[0]]; ok && match(child, segs[1:]) {
		return true
	}
	return false
}

func segments(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
