package graph

import "context"

// ShortestPath returns a minimum-hop path from source to target, ignoring
// edge direction. It returns nil if either endpoint is missing or the two
// are not connected. Neighbours are expanded in sorted order, so ties
// resolve the same way on every call.
func (s *Store) ShortestPath(ctx context.Context, source, target string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.g.has(source) || !s.g.has(target) {
		return nil
	}
	if source == target {
		return []string{source}
	}

	cameFrom := map[string]string{source: ""}
	queue := []string{source}
	for len(queue) > 0 {
		if ctx.Err() != nil {
			return nil
		}
		cur := queue[0]
		queue = queue[1:]

		for _, next := range s.g.neighbors(cur, Both) {
			if _, seen := cameFrom[next]; seen {
				continue
			}
			cameFrom[next] = cur
			if next == target {
				return rebuildPath(cameFrom, source, target)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func rebuildPath(cameFrom map[string]string, source, target string) []string {
	var rev []string
	for at := target; at != source; at = cameFrom[at] {
		rev = append(rev, at)
	}
	rev = append(rev, source)

	path := make([]string, len(rev))
	for i, id := range rev {
		path[len(rev)-1-i] = id
	}
	return path
}

// Walk collects nodes reachable from seeds within maxHops undirected hops,
// stopping once maxNodes have been gathered. Seeds missing from the graph
// are skipped.
func (s *Store) Walk(ctx context.Context, seeds []string, maxHops, maxNodes int) []WalkNode {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type item struct {
		id    string
		depth int
	}

	depth := make(map[string]int)
	var order []string
	var queue []item
	for _, id := range seeds {
		if !s.g.has(id) {
			continue
		}
		if _, ok := depth[id]; ok {
			continue
		}
		if maxNodes > 0 && len(order) >= maxNodes {
			break
		}
		depth[id] = 0
		order = append(order, id)
		queue = append(queue, item{id, 0})
	}

	for len(queue) > 0 && (maxNodes <= 0 || len(order) < maxNodes) {
		if ctx.Err() != nil {
			break
		}
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxHops {
			continue
		}
		for _, next := range s.g.neighbors(cur.id, Both) {
			if _, seen := depth[next]; seen {
				continue
			}
			if maxNodes > 0 && len(order) >= maxNodes {
				break
			}
			depth[next] = cur.depth + 1
			order = append(order, next)
			queue = append(queue, item{next, cur.depth + 1})
		}
	}

	out := make([]WalkNode, 0, len(order))
	for _, id := range order {
		out = append(out, WalkNode{Entity: cloneEntity(s.g.nodes[id]), Depth: depth[id]})
	}
	return out
}
