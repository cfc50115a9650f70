package rare

// Reaction is the stoichiometric footprint of one reaction: per-species
// net change. Negative entries consume, positive entries produce.
type Reaction struct {
	Name   string
	Update []int64
}

// Network is a chemical reaction network reduced to what rare-event
// analysis needs: named species and reaction update vectors.
type Network struct {
	Species   []string
	Reactions []Reaction
}

// DependencyGraph is the directed graph over reactions where an edge
// i -> j means reaction i produces a species that reaction j consumes.
type DependencyGraph struct {
	network *Network
	adj     [][]int
}

// NewDependencyGraph builds the production/consumption graph.
func NewDependencyGraph(n *Network) *DependencyGraph {
	g := &DependencyGraph{network: n, adj: make([][]int, len(n.Reactions))}
	for i, ri := range n.Reactions {
		for j, rj := range n.Reactions {
			if i == j {
				continue
			}
			for s := range n.Species {
				if ri.Update[s] > 0 && rj.Update[s] < 0 {
					g.adj[i] = append(g.adj[i], j)
					break
				}
			}
		}
	}
	return g
}

// Network returns the underlying reaction network.
func (g *DependencyGraph) Network() *Network { return g.network }

// Dependents returns the reactions fed by reaction i.
func (g *DependencyGraph) Dependents(i int) []int { return g.adj[i] }

// Cycles returns the reaction cycles of the graph as index lists. Each
// cycle is reported once, rooted at its smallest reaction index.
func (g *DependencyGraph) Cycles() [][]int {
	var cycles [][]int
	n := len(g.adj)
	path := make([]int, 0, n)
	onPath := make([]bool, n)

	var dfs func(root, at int)
	dfs = func(root, at int) {
		path = append(path, at)
		onPath[at] = true
		for _, next := range g.adj[at] {
			if next == root {
				cycle := make([]int, len(path))
				copy(cycle, path)
				cycles = append(cycles, cycle)
				continue
			}
			// Rooting each cycle at its minimum index deduplicates
			// rotations of the same cycle.
			if next > root && !onPath[next] {
				dfs(root, next)
			}
		}
		onPath[at] = false
		path = path[:len(path)-1]
	}
	for root := 0; root < n; root++ {
		dfs(root, root)
	}
	return cycles
}
