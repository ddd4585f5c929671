package graph

import "sort"

type predSet map[string]struct{}

// mirror is the in-memory directed graph kept in step with the tables.
// Callers hold Store.mu.
type mirror struct {
	nodes map[string]Entity
	out   map[string]map[string]predSet // subject -> object -> predicates
	in    map[string]map[string]predSet // object -> subject -> predicates
}

func newMirror() *mirror {
	return &mirror{
		nodes: make(map[string]Entity),
		out:   make(map[string]map[string]predSet),
		in:    make(map[string]map[string]predSet),
	}
}

func (m *mirror) setNode(e Entity) {
	m.nodes[e.ID] = e
}

// ensureNode adds a placeholder only if id is not already a node.
func (m *mirror) ensureNode(id string) {
	if _, ok := m.nodes[id]; !ok {
		m.nodes[id] = placeholder(id)
	}
}

func (m *mirror) addEdge(subject, predicate, object string) {
	m.ensureNode(subject)
	m.ensureNode(object)
	link(m.out, subject, object, predicate)
	link(m.in, object, subject, predicate)
}

func link(idx map[string]map[string]predSet, from, to, predicate string) {
	peers, ok := idx[from]
	if !ok {
		peers = make(map[string]predSet)
		idx[from] = peers
	}
	preds, ok := peers[to]
	if !ok {
		preds = make(predSet)
		peers[to] = preds
	}
	preds[predicate] = struct{}{}
}

func (m *mirror) has(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

func (m *mirror) neighbors(id string, dir Direction) []string {
	if !m.has(id) {
		return nil
	}
	seen := make(map[string]struct{})
	if dir == Outgoing || dir == Both {
		for peer := range m.out[id] {
			seen[peer] = struct{}{}
		}
	}
	if dir == Incoming || dir == Both {
		for peer := range m.in[id] {
			seen[peer] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func (m *mirror) edgeCount() int {
	n := 0
	for _, peers := range m.out {
		for _, preds := range peers {
			n += len(preds)
		}
	}
	return n
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func placeholder(id string) Entity {
	return Entity{ID: id, EntityType: TypeUnknown, Name: id}
}
