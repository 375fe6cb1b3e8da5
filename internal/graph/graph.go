// Package graph navigates the commit graph recorded in the parent log.
//
// The log is append-only and a commit's parents are always written before
// it, so log order is a valid topological order of the graph.
package graph

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"wit/internal/errors"
	"wit/internal/fsio"
)

// Graph is an arena of commits indexed by id, plus their creation order.
type Graph struct {
	order   []string
	parents map[string][]string
}

func New() *Graph {
	return &Graph{parents: make(map[string][]string)}
}

// Add records id with its parents. Parents must already be known.
func (g *Graph) Add(id string, parents ...string) error {
	if _, ok := g.parents[id]; ok {
		return errors.AlreadyExists(fmt.Sprintf("commit %s already recorded", id))
	}
	for _, p := range parents {
		if _, ok := g.parents[p]; !ok {
			return errors.Structural(fmt.Sprintf("commit %s names unknown parent %s", id, p), nil)
		}
	}
	g.parents[id] = append([]string(nil), parents...)
	g.order = append(g.order, id)
	return nil
}

func (g *Graph) Has(id string) bool {
	_, ok := g.parents[id]
	return ok
}

func (g *Graph) Parents(id string) []string {
	return g.parents[id]
}

// Len is the number of recorded commits.
func (g *Graph) Len() int {
	return len(g.order)
}

// Ancestors returns id and every commit reachable from it over parent
// pointers, walked breadth first with an explicit worklist.
func (g *Graph) Ancestors(id string) mapset.Set[string] {
	seen := mapset.NewThreadUnsafeSet[string]()
	if !g.Has(id) {
		return seen
	}
	queue := []string{id}
	seen.Add(id)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, p := range g.parents[cur] {
			if seen.Add(p) {
				queue = append(queue, p)
			}
		}
	}
	return seen
}

// MergeBase returns the most recently created commit that is an ancestor of
// both a and b.
func (g *Graph) MergeBase(a, b string) (string, error) {
	common := g.Ancestors(a).Intersect(g.Ancestors(b))
	for i := len(g.order) - 1; i >= 0; i-- {
		if common.Contains(g.order[i]) {
			return g.order[i], nil
		}
	}
	return "", errors.UnrelatedHistories(a, b)
}

// History returns the ancestors of id, newest first.
func (g *Graph) History(id string) []string {
	ancestors := g.Ancestors(id)
	out := make([]string, 0, ancestors.Cardinality())
	for i := len(g.order) - 1; i >= 0; i-- {
		if ancestors.Contains(g.order[i]) {
			out = append(out, g.order[i])
		}
	}
	return out
}

// ReadLog loads the parent log at path. Each line is `id=` for a root commit
// or `id=parent[, parent]`.
func ReadLog(path string) (*Graph, error) {
	lines, err := fsio.ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("reading parent log: %w", err)
	}
	g := New()
	for i, line := range lines {
		id, rest, ok := strings.Cut(line, "=")
		if !ok || id == "" {
			return nil, errors.Structural(fmt.Sprintf("corrupt parent log: line %d %q", i+1, line), nil)
		}
		var parents []string
		for _, p := range strings.Split(rest, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parents = append(parents, p)
			}
		}
		if err := g.Add(id, parents...); err != nil {
			return nil, fmt.Errorf("parent log line %d: %w", i+1, err)
		}
	}
	return g, nil
}

// AppendLog appends one commit to the parent log at path.
func AppendLog(path, id string, parents ...string) error {
	return fsio.AppendLine(path, id+"="+strings.Join(parents, ", "))
}
