package gitcore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goabstract/gitcore/ginternals"
	"github.com/goabstract/gitcore/ginternals/githash"
	"github.com/goabstract/gitcore/ginternals/object"
)

// ErrNoCommonAncestor is returned when two commits don't share any
// history
var ErrNoCommonAncestor = errors.New("no common ancestor")

// Graph runs read-only queries over the DAG formed by the commits and
// their parent pointers
type Graph struct {
	r *Repository
}

// Graph returns a view on the commit graph of the repository
func (r *Repository) Graph() *Graph {
	return &Graph{r: r}
}

// commit fetches a commit, reporting whether it's missing from the
// odb. Objects of the wrong type are an error, missing commits are a
// frontier the walks stop at
func (g *Graph) commit(ctx context.Context, oid githash.Oid) (c *object.Commit, found bool, err error) {
	c, err = g.r.Commit(ctx, oid)
	if err != nil {
		if errors.Is(err, ginternals.ErrObjectNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return c, true, nil
}

// Ancestors returns the set of all the commits reachable from start
// through parent edges, start included.
// The walk is iterative and breadth-first; commits missing from the
// odb end their branch of the walk without error
func (g *Graph) Ancestors(ctx context.Context, start githash.Oid) (map[githash.Oid]struct{}, error) {
	visited := map[githash.Oid]struct{}{}
	queue := []githash.Oid{start}
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		if _, ok := visited[oid]; ok {
			continue
		}

		c, found, err := g.commit(ctx, oid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		visited[oid] = struct{}{}
		queue = append(queue, c.ParentIDs()...)
	}
	return visited, nil
}

// IsAncestor returns whether a is an ancestor of b. A commit is its
// own ancestor
func (g *Graph) IsAncestor(ctx context.Context, a, b githash.Oid) (bool, error) {
	if a == b {
		return true, nil
	}

	visited := map[githash.Oid]struct{}{}
	queue := []githash.Oid{b}
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		if oid == a {
			return true, nil
		}
		if _, ok := visited[oid]; ok {
			continue
		}
		visited[oid] = struct{}{}

		c, found, err := g.commit(ctx, oid)
		if err != nil {
			return false, err
		}
		if !found {
			continue
		}
		queue = append(queue, c.ParentIDs()...)
	}
	return false, nil
}

// AncestorDistance returns the length of the shortest parent path
// from b down to a: 0 when the commits are equal, -1 when a is not an
// ancestor of b.
// The search goes through every parent edge, so the distance counts
// through merges
func (g *Graph) AncestorDistance(ctx context.Context, a, b githash.Oid) (int, error) {
	if a == b {
		return 0, nil
	}

	type step struct {
		oid  githash.Oid
		dist int
	}
	visited := map[githash.Oid]struct{}{}
	queue := []step{{oid: b}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.oid == a {
			return cur.dist, nil
		}
		if _, ok := visited[cur.oid]; ok {
			continue
		}
		visited[cur.oid] = struct{}{}

		c, found, err := g.commit(ctx, cur.oid)
		if err != nil {
			return -1, err
		}
		if !found {
			continue
		}
		for _, p := range c.ParentIDs() {
			queue = append(queue, step{oid: p, dist: cur.dist + 1})
		}
	}
	return -1, nil
}

// sortOids orders ids by their hex representation
func sortOids(oids []githash.Oid) {
	sort.Slice(oids, func(i, j int) bool {
		return oids[i].String() < oids[j].String()
	})
}

// MergeBases returns every maximal common ancestor of a and b, sorted
// by id. An empty slice means the commits share no history
func (g *Graph) MergeBases(ctx context.Context, a, b githash.Oid) ([]githash.Oid, error) {
	ancA, err := g.Ancestors(ctx, a)
	if err != nil {
		return nil, err
	}
	ancB, err := g.Ancestors(ctx, b)
	if err != nil {
		return nil, err
	}

	common := map[githash.Oid]struct{}{}
	for oid := range ancA {
		if _, ok := ancB[oid]; ok {
			common[oid] = struct{}{}
		}
	}
	if len(common) == 0 {
		return []githash.Oid{}, nil
	}

	// a common ancestor is maximal if it's not a strict ancestor of
	// another common ancestor
	dominated := map[githash.Oid]struct{}{}
	for oid := range common {
		anc, err := g.Ancestors(ctx, oid)
		if err != nil {
			return nil, err
		}
		for other := range anc {
			if other == oid {
				continue
			}
			if _, ok := common[other]; ok {
				dominated[other] = struct{}{}
			}
		}
	}

	out := make([]githash.Oid, 0, len(common))
	for oid := range common {
		if _, ok := dominated[oid]; !ok {
			out = append(out, oid)
		}
	}
	sortOids(out)
	return out, nil
}

// MergeBase returns one deterministic maximal common ancestor of a
// and b: the one with the smallest id.
// ErrNoCommonAncestor is returned when the commits share no history
func (g *Graph) MergeBase(ctx context.Context, a, b githash.Oid) (githash.Oid, error) {
	bases, err := g.MergeBases(ctx, a, b)
	if err != nil {
		return githash.NullOid, err
	}
	if len(bases) == 0 {
		return githash.NullOid, fmt.Errorf("commits %s and %s: %w", a.String(), b.String(), ErrNoCommonAncestor)
	}
	return bases[0], nil
}

// MergeBasesOctopus returns the merge bases of more than two commits
// by iteratively folding the pairwise bases. An empty slice means at
// least one input shares no history with the others
func (g *Graph) MergeBasesOctopus(ctx context.Context, commits []githash.Oid) ([]githash.Oid, error) {
	if len(commits) == 0 {
		return []githash.Oid{}, nil
	}

	bases := []githash.Oid{commits[0]}
	for _, next := range commits[1:] {
		folded := map[githash.Oid]struct{}{}
		for _, base := range bases {
			sub, err := g.MergeBases(ctx, base, next)
			if err != nil {
				return nil, err
			}
			for _, oid := range sub {
				folded[oid] = struct{}{}
			}
		}
		if len(folded) == 0 {
			return []githash.Oid{}, nil
		}
		bases = make([]githash.Oid, 0, len(folded))
		for oid := range folded {
			bases = append(bases, oid)
		}
	}
	sortOids(bases)
	return bases, nil
}

// MergeBaseRecursive reduces the merge bases of a and b to a single
// representative: when the history is criss-crossed and several
// maximal bases exist, they get recursively merged pairwise.
// ErrNoCommonAncestor is returned when the commits share no history
func (g *Graph) MergeBaseRecursive(ctx context.Context, a, b githash.Oid) (githash.Oid, error) {
	bases, err := g.MergeBases(ctx, a, b)
	if err != nil {
		return githash.NullOid, err
	}
	if len(bases) == 0 {
		return githash.NullOid, fmt.Errorf("commits %s and %s: %w", a.String(), b.String(), ErrNoCommonAncestor)
	}

	rep := bases[0]
	for _, next := range bases[1:] {
		combined, err := g.MergeBaseRecursive(ctx, rep, next)
		if err != nil {
			if errors.Is(err, ErrNoCommonAncestor) {
				continue
			}
			return githash.NullOid, err
		}
		rep = combined
	}
	return rep, nil
}

// IndependentCommits filters the inputs down to the ones that are not
// ancestors of another input. Duplicates are dropped, the input order
// is preserved
func (g *Graph) IndependentCommits(ctx context.Context, commits []githash.Oid) ([]githash.Oid, error) {
	unique := make([]githash.Oid, 0, len(commits))
	seen := map[githash.Oid]struct{}{}
	for _, oid := range commits {
		if _, ok := seen[oid]; ok {
			continue
		}
		seen[oid] = struct{}{}
		unique = append(unique, oid)
	}

	out := make([]githash.Oid, 0, len(unique))
	for i, candidate := range unique {
		dominated := false
		for j, other := range unique {
			if i == j {
				continue
			}
			isAnc, err := g.IsAncestor(ctx, candidate, other)
			if err != nil {
				return nil, err
			}
			if isAnc {
				dominated = true
				break
			}
		}
		if !dominated {
			out = append(out, candidate)
		}
	}
	return out, nil
}

// ForkPoint returns the merge base of tip and base, alongside the
// length of the first-parent path from tip back to it. The distance
// is -1 when the base isn't on the first-parent chain of tip
func (g *Graph) ForkPoint(ctx context.Context, tip, base githash.Oid) (githash.Oid, int, error) {
	forkBase, err := g.MergeBase(ctx, tip, base)
	if err != nil {
		return githash.NullOid, -1, err
	}

	dist := 0
	cur := tip
	for {
		if cur == forkBase {
			return forkBase, dist, nil
		}
		c, found, err := g.commit(ctx, cur)
		if err != nil {
			return githash.NullOid, -1, err
		}
		if !found || len(c.ParentIDs()) == 0 {
			return forkBase, -1, nil
		}
		cur = c.ParentIDs()[0]
		dist++
	}
}

// HasCommonHistory returns whether every pair of inputs shares at
// least one common ancestor
func (g *Graph) HasCommonHistory(ctx context.Context, commits []githash.Oid) (bool, error) {
	for i := range commits {
		for j := i + 1; j < len(commits); j++ {
			bases, err := g.MergeBases(ctx, commits[i], commits[j])
			if err != nil {
				return false, err
			}
			if len(bases) == 0 {
				return false, nil
			}
		}
	}
	return true, nil
}
