package catalog

import (
	"fmt"
	"sort"
)

// Graph is a validated, immutable view of a course's prerequisite DAG.
// Construction fails if the node set contains unknown prerequisite ids or a
// cycle, so holders of a *Graph can rely on acyclicity.
type Graph struct {
	courseID string
	nodes    map[string]ContentNode
	order    []string // deterministic topological order of all node ids
}

// NewGraph validates the node set and builds a Graph.
func NewGraph(courseID string, nodes []ContentNode) (*Graph, error) {
	byID := make(map[string]ContentNode, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("course %s: node with empty id", courseID)
		}
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("course %s: duplicate node id %s", courseID, n.ID)
		}
		byID[n.ID] = n
	}
	for _, n := range nodes {
		for _, p := range n.Prerequisites {
			if _, ok := byID[p]; !ok {
				return nil, fmt.Errorf("course %s: node %s requires unknown node %s", courseID, n.ID, p)
			}
		}
	}

	order, err := topoSort(byID, nil)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", courseID, err)
	}
	if len(order) != len(nodes) {
		return nil, fmt.Errorf("course %s: %w", courseID, ErrCyclicPrerequisites)
	}

	return &Graph{courseID: courseID, nodes: byID, order: order}, nil
}

// CourseID returns the id of the course this graph belongs to.
func (g *Graph) CourseID() string { return g.courseID }

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Node returns a node by id.
func (g *Graph) Node(id string) (ContentNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Order returns all node ids in a deterministic topological order.
func (g *Graph) Order() []string {
	return append([]string{}, g.order...)
}

// TopicNodes returns the ids of all nodes covering the given topic, sorted by
// ascending difficulty then id.
func (g *Graph) TopicNodes(topic string) []string {
	var ids []string
	for id, n := range g.nodes {
		if n.Topic == topic {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a.Difficulty != b.Difficulty {
			return a.Difficulty < b.Difficulty
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Topics returns the distinct topics covered by the graph, sorted.
func (g *Graph) Topics() []string {
	seen := map[string]bool{}
	var topics []string
	for _, n := range g.nodes {
		if !seen[n.Topic] {
			seen[n.Topic] = true
			topics = append(topics, n.Topic)
		}
	}
	sort.Strings(topics)
	return topics
}

// Walk runs Kahn's algorithm over the subset of nodes for which include
// returns true. Prerequisites outside the subset are treated as satisfied.
// At each step the next node is chosen by rank among the ready frontier, with
// ties broken by lowest node id. Returns ErrCyclicPrerequisites if the subset
// cannot be fully ordered.
func (g *Graph) Walk(include func(ContentNode) bool, rank func(ContentNode) float64) ([]string, error) {
	subset := make(map[string]ContentNode)
	for id, n := range g.nodes {
		if include == nil || include(n) {
			subset[id] = n
		}
	}
	order, err := topoSortRanked(subset, rank)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// topoSort orders the given nodes topologically with lowest-id tie-breaking.
func topoSort(nodes map[string]ContentNode, rank func(ContentNode) float64) ([]string, error) {
	return topoSortRanked(nodes, rank)
}

func topoSortRanked(nodes map[string]ContentNode, rank func(ContentNode) float64) ([]string, error) {
	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for id, n := range nodes {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, p := range n.Prerequisites {
			if _, inSubset := nodes[p]; !inSubset {
				continue // satisfied outside the subset
			}
			indegree[id]++
			dependents[p] = append(dependents[p], id)
		}
	}

	var frontier []string
	for id, d := range indegree {
		if d == 0 {
			frontier = append(frontier, id)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(frontier) > 0 {
		// Pick the best-ranked ready node; lowest id wins ties.
		best := 0
		for i := 1; i < len(frontier); i++ {
			a, b := frontier[i], frontier[best]
			switch {
			case rank == nil:
				if a < b {
					best = i
				}
			default:
				ra, rb := rank(nodes[a]), rank(nodes[b])
				if ra > rb || (ra == rb && a < b) {
					best = i
				}
			}
		}
		next := frontier[best]
		frontier = append(frontier[:best], frontier[best+1:]...)
		order = append(order, next)

		deps := dependents[next]
		sort.Strings(deps)
		for _, d := range deps {
			indegree[d]--
			if indegree[d] == 0 {
				frontier = append(frontier, d)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, ErrCyclicPrerequisites
	}
	return order, nil
}
