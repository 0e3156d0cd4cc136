// Package thread reconstructs conversation trees from the reference
// chains of a flat message list and linearizes them for display.
package thread

import (
	"sort"
	"strings"
	"time"

	"github.com/wesm/mudex/internal/model"
)

// Options controls root ordering.
type Options struct {
	// Descending puts the thread with the newest earliest-message first.
	Descending bool
}

// Node is one message in a thread. Children are owned by the node and
// ordered by date ascending; ParentID is a lookup key only.
type Node struct {
	Message  *model.Message
	Depth    int
	ParentID string
	Children []*Node
}

// Entry is one row of the flattened display order.
type Entry struct {
	Message *model.Message
	Depth   int
	// Last reports whether this is the last child of its parent.
	Last bool
	// Guides[i] reports whether the ancestor at depth i+1 has later
	// siblings, i.e. whether a vertical connector runs through this row.
	Guides []bool
}

// Prefix renders the tree connectors for e, e.g. "│ └ ".
func (e Entry) Prefix() string {
	if e.Depth == 0 {
		return ""
	}
	var b strings.Builder
	for _, g := range e.Guides {
		if g {
			b.WriteString("│ ")
		} else {
			b.WriteString("  ")
		}
	}
	if e.Last {
		b.WriteString("└ ")
	} else {
		b.WriteString("├ ")
	}
	return b.String()
}

// Forest is the result of Build.
type Forest struct {
	Roots   []*Node
	Entries []Entry
}

// Order returns the ids of Entries in display order.
func (f *Forest) Order() []string {
	ids := make([]string, len(f.Entries))
	for i, e := range f.Entries {
		ids[i] = e.Message.ID
	}
	return ids
}

// Depths maps each id to its depth.
func (f *Forest) Depths() map[string]int {
	out := make(map[string]int, len(f.Entries))
	for _, e := range f.Entries {
		out[e.Message.ID] = e.Depth
	}
	return out
}

// Build threads records. Records whose ancestors are all absent become
// roots, as does the first record (in input order) of any reference
// cycle. Duplicate ids keep the first record.
func Build(records []*model.Message, opts Options) *Forest {
	present := make(map[string]*model.Message, len(records))
	index := make(map[string]int, len(records))
	msgs := make([]*model.Message, 0, len(records))
	for _, m := range records {
		if m == nil || present[m.ID] != nil {
			continue
		}
		present[m.ID] = m
		index[m.ID] = len(msgs)
		msgs = append(msgs, m)
	}

	parent := make(map[string]string, len(msgs))
	for _, m := range msgs {
		if p := parentOf(m, present); p != "" {
			parent[m.ID] = p
		}
	}
	breakCycles(msgs, parent)

	nodes := make(map[string]*Node, len(msgs))
	for _, m := range msgs {
		nodes[m.ID] = &Node{Message: m, ParentID: parent[m.ID]}
	}
	var roots []*Node
	for _, m := range msgs {
		n := nodes[m.ID]
		if n.ParentID == "" {
			roots = append(roots, n)
			continue
		}
		p := nodes[n.ParentID]
		p.Children = append(p.Children, n)
	}

	earliest := make(map[*Node]time.Time, len(roots))
	for _, r := range roots {
		earliest[r] = finish(r, 0, index)
	}
	sort.SliceStable(roots, func(i, j int) bool {
		a, b := earliest[roots[i]], earliest[roots[j]]
		if opts.Descending {
			return a.After(b)
		}
		return a.Before(b)
	})

	f := &Forest{Roots: roots, Entries: make([]Entry, 0, len(msgs))}
	for _, r := range roots {
		f.flatten(r, true, nil)
	}
	return f
}

// parentOf picks the nearest present ancestor of m. References are walked
// from most recent; a candidate that appears in another candidate's own
// references is an older ancestor and is skipped, so a chain listed in
// either order resolves to the immediate parent.
func parentOf(m *model.Message, present map[string]*model.Message) string {
	var cands []string
	for i := len(m.References) - 1; i >= 0; i-- {
		ref := m.References[i]
		if ref == m.ID || present[ref] == nil || contains(cands, ref) {
			continue
		}
		cands = append(cands, ref)
	}
	if len(cands) == 0 {
		return ""
	}
	for _, c := range cands {
		older := false
		for _, d := range cands {
			if d != c && contains(present[d].References, c) {
				older = true
				break
			}
		}
		if !older {
			return c
		}
	}
	return cands[0]
}

// breakCycles walks each tentative parent chain with a visited set. A
// record whose chain leads back to itself is made a root.
func breakCycles(msgs []*model.Message, parent map[string]string) {
	for _, m := range msgs {
		visited := map[string]bool{m.ID: true}
		for p := parent[m.ID]; p != ""; p = parent[p] {
			if p == m.ID {
				delete(parent, m.ID)
				break
			}
			if visited[p] {
				break
			}
			visited[p] = true
		}
	}
}

// finish assigns depths, sorts children and returns the earliest date in
// the subtree.
func finish(n *Node, depth int, index map[string]int) time.Time {
	n.Depth = depth
	earliest := n.Message.Date
	for _, c := range n.Children {
		if t := finish(c, depth+1, index); t.Before(earliest) {
			earliest = t
		}
	}
	sort.SliceStable(n.Children, func(i, j int) bool {
		a, b := n.Children[i].Message, n.Children[j].Message
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return index[a.ID] < index[b.ID]
	})
	return earliest
}

func (f *Forest) flatten(n *Node, last bool, guides []bool) {
	f.Entries = append(f.Entries, Entry{
		Message: n.Message,
		Depth:   n.Depth,
		Last:    last,
		Guides:  guides,
	})
	var childGuides []bool
	if n.Depth > 0 {
		childGuides = append(append([]bool(nil), guides...), !last)
	}
	for i, c := range n.Children {
		f.flatten(c, i == len(n.Children)-1, childGuides)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
