package langpair

import "sort"

// Graph is an adjacency list over base language codes derived from the
// installed pairs. Variants are ignored: "spa-cat_valencia" contributes the
// edge spa -> cat.
type Graph map[string][]string

// BuildGraph derives the base-language graph from installed keys.
func BuildGraph(keys []Key) Graph {
	seen := make(map[[2]string]bool)
	g := make(Graph)
	for _, k := range keys {
		e := [2]string{k.Src.Base, k.Trg.Base}
		if e[0] == e[1] || seen[e] {
			continue
		}
		seen[e] = true
		g[e[0]] = append(g[e[0]], e[1])
	}
	for src := range g {
		sort.Strings(g[src])
	}
	return g
}

// Nodes returns every language that appears in the graph, sorted.
func (g Graph) Nodes() []string {
	set := make(map[string]struct{})
	for src, dsts := range g {
		set[src] = struct{}{}
		for _, d := range dsts {
			set[d] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ShortestPaths computes, for every language reachable from src, the
// sequence of languages to traverse (both ends included). Edges have unit
// weight so a breadth-first relaxation is sufficient. src itself and
// unreachable languages have no entry.
func (g Graph) ShortestPaths(src string) map[string][]string {
	prev := map[string]string{src: ""}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g[cur] {
			if _, ok := prev[next]; ok {
				continue
			}
			prev[next] = cur
			queue = append(queue, next)
		}
	}
	paths := make(map[string][]string, len(prev)-1)
	for dst := range prev {
		if dst == src {
			continue
		}
		var rev []string
		for at := dst; at != ""; at = prev[at] {
			rev = append(rev, at)
		}
		path := make([]string, len(rev))
		for i, l := range rev {
			path[len(rev)-1-i] = l
		}
		paths[dst] = path
	}
	return paths
}

// PathTable holds the shortest paths from every source language.
type PathTable map[string]map[string][]string

// BuildPathTable runs ShortestPaths from every node of g.
func BuildPathTable(g Graph) PathTable {
	t := make(PathTable)
	for _, src := range g.Nodes() {
		if ps := g.ShortestPaths(src); len(ps) > 0 {
			t[src] = ps
		}
	}
	return t
}

// Path returns the stored path from src to dst.
func (t PathTable) Path(src, dst string) ([]string, bool) {
	p, ok := t[src][dst]
	return p, ok
}
