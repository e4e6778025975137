package cluster

import (
	"math"
	"sort"
)

// maxLambda stands in for 1/0 when points coincide.
const maxLambda = 1e12

type edge struct {
	a, b   int
	weight float64
}

type linkNode struct {
	left, right int
	dist        float64
	size        int
}

type fallen struct {
	point  int
	lambda float64
}

type condensed struct {
	parent    int
	birth     float64
	stability float64
	children  []int
	fallen    []fallen
}

// hdbscan returns a label per point, -1 for noise. Labels are arbitrary
// non-negative integers; callers renumber them.
func hdbscan(dist [][]float64, minClusterSize, minSamples int) []int {
	n := len(dist)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	if n < 2 || n < minClusterSize {
		return labels
	}

	core := coreDistances(dist, minSamples)
	mst := primMST(dist, core)
	tree := singleLinkage(n, mst)
	clusters := condense(tree, minClusterSize)
	selected := selectEOM(clusters)

	members := make([][]int, len(clusters))
	for c := len(clusters) - 1; c >= 0; c-- {
		for _, f := range clusters[c].fallen {
			members[c] = append(members[c], f.point)
		}
		for _, child := range clusters[c].children {
			members[c] = append(members[c], members[child]...)
		}
	}
	for c, ok := range selected {
		if !ok {
			continue
		}
		for _, p := range members[c] {
			labels[p] = c
		}
	}
	return labels
}

// coreDistances is the distance from each point to its minSamples-th nearest
// neighbour, counting the point itself.
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	k := minSamples - 1
	if k < 0 {
		k = 0
	}
	if k > n-1 {
		k = n - 1
	}

	core := make([]float64, n)
	row := make([]float64, n)
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		// row[0] is the zero distance to i itself.
		core[i] = row[k]
	}
	return core
}

// primMST builds the minimum spanning tree of the mutual reachability graph.
// Ties go to the lowest point index.
func primMST(dist [][]float64, core []float64) []edge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[0] = true
	for len(edges) < n-1 {
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			w := math.Max(dist[current][j], math.Max(core[current], core[j]))
			if w < best[j] {
				best[j] = w
				from[j] = current
			}
		}

		next := -1
		for j := 0; j < n; j++ {
			if !inTree[j] && (next < 0 || best[j] < best[next]) {
				next = j
			}
		}
		inTree[next] = true
		edges = append(edges, edge{a: from[next], b: next, weight: best[next]})
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].weight != edges[j].weight {
			return edges[i].weight < edges[j].weight
		}
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})
	return edges
}

// singleLinkage merges MST edges in order. Nodes 0..n-1 are points, node
// n+k is the k-th merge; the last node is the root.
func singleLinkage(n int, edges []edge) []linkNode {
	tree := make([]linkNode, 2*n-1)
	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	for i := 0; i < n; i++ {
		tree[i] = linkNode{left: -1, right: -1, size: 1}
	}

	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for k, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + k
		tree[node] = linkNode{left: ra, right: rb, dist: e.weight, size: tree[ra].size + tree[rb].size}
		parent[ra] = node
		parent[rb] = node
	}
	return tree
}

func lambdaOf(dist float64) float64 {
	if dist <= 1/maxLambda {
		return maxLambda
	}
	return 1 / dist
}

func leaves(tree []linkNode, node int) []int {
	var out []int
	stack := []int{node}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if tree[x].left < 0 {
			out = append(out, x)
			continue
		}
		stack = append(stack, tree[x].right, tree[x].left)
	}
	return out
}

// condense walks the single linkage tree from the root, keeping only splits
// where both sides have at least minClusterSize points. Cluster 0 is the root
// and children always have larger ids than their parent.
func condense(tree []linkNode, minClusterSize int) []condensed {
	clusters := []condensed{{parent: -1}}

	type frame struct{ node, cluster int }
	stack := []frame{{node: len(tree) - 1, cluster: 0}}

	fallOut := func(c, node int, lambda float64) {
		for _, p := range leaves(tree, node) {
			clusters[c].fallen = append(clusters[c].fallen, fallen{point: p, lambda: lambda})
			clusters[c].stability += lambda - clusters[c].birth
		}
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := tree[f.node]
		if node.left < 0 {
			clusters[f.cluster].fallen = append(clusters[f.cluster].fallen, fallen{point: f.node, lambda: clusters[f.cluster].birth})
			continue
		}

		lambda := lambdaOf(node.dist)
		left, right := tree[node.left], tree[node.right]
		switch {
		case left.size >= minClusterSize && right.size >= minClusterSize:
			for _, child := range []int{node.right, node.left} {
				id := len(clusters)
				clusters = append(clusters, condensed{parent: f.cluster, birth: lambda})
				clusters[f.cluster].children = append(clusters[f.cluster].children, id)
				clusters[f.cluster].stability += float64(tree[child].size) * (lambda - clusters[f.cluster].birth)
				stack = append(stack, frame{node: child, cluster: id})
			}
		case left.size >= minClusterSize:
			fallOut(f.cluster, node.right, lambda)
			stack = append(stack, frame{node: node.left, cluster: f.cluster})
		case right.size >= minClusterSize:
			fallOut(f.cluster, node.left, lambda)
			stack = append(stack, frame{node: node.right, cluster: f.cluster})
		default:
			fallOut(f.cluster, node.left, lambda)
			fallOut(f.cluster, node.right, lambda)
		}
	}
	return clusters
}

// selectEOM picks the flat clustering with the largest total stability
// (excess of mass). The root is never selected.
func selectEOM(clusters []condensed) []bool {
	selected := make([]bool, len(clusters))
	score := make([]float64, len(clusters))

	for c := len(clusters) - 1; c >= 1; c-- {
		own := clusters[c].stability
		if len(clusters[c].children) == 0 {
			selected[c] = true
			score[c] = own
			continue
		}
		var sub float64
		for _, child := range clusters[c].children {
			sub += score[child]
		}
		if sub > own {
			score[c] = sub
			continue
		}
		score[c] = own
		selected[c] = true
		deselect(clusters, selected, c)
	}
	return selected
}

func deselect(clusters []condensed, selected []bool, c int) {
	for _, child := range clusters[c].children {
		selected[child] = false
		deselect(clusters, selected, child)
	}
}
