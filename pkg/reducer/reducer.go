// Package reducer projects embedding vectors into the 10-dimensional
// clustering space and the 2-dimensional visualisation plane.
package reducer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/xhad/docsort/internal/models"
)

var ErrInconsistentDimensions = errors.New("embedding vectors have different lengths")

// minScale keeps kernel bandwidths positive when documents are identical.
const minScale = 1e-6

type ReducerConfig struct {
	// MinPoints is the smallest batch that gets a real projection. Smaller
	// batches are laid out on the unit circle.
	MinPoints int
	// Neighbours is the size of each document's neighbourhood graph.
	Neighbours int
	// ScaleNeighbour picks the neighbour whose distance sets a document's
	// kernel bandwidth.
	ScaleNeighbour int
	// PlaneNeighbours is the neighbourhood size of the separate, wider graph
	// behind the 2D map.
	PlaneNeighbours int
}

// diffusion parameterizes one diffusion map run.
type diffusion struct {
	neighbours int
	scaleAt    int
	// steps is the diffusion time; eigenvalues are raised to this power.
	steps int
	dims  int
}

type Reducer struct {
	config ReducerConfig
}

func NewWithConfig(config ReducerConfig) *Reducer {
	if config.MinPoints <= 0 {
		config.MinPoints = 4
	}
	if config.Neighbours <= 0 {
		config.Neighbours = 15
	}
	if config.ScaleNeighbour <= 0 {
		config.ScaleNeighbour = 7
	}
	if config.PlaneNeighbours <= 0 {
		config.PlaneNeighbours = 2 * config.Neighbours
	}
	return &Reducer{config: config}
}

// Reduce returns one point per vector, in input order. The same input always
// yields the same output.
func (r *Reducer) Reduce(ctx context.Context, vectors []models.EmbeddingVector) ([]models.ProjectedPoint, error) {
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	d := len(vectors[0].Vector)
	for _, v := range vectors {
		if len(v.Vector) != d {
			return nil, ErrInconsistentDimensions
		}
	}

	points := make([]models.ProjectedPoint, n)
	for i, v := range vectors {
		points[i].DocumentID = v.DocumentID
	}
	if n < r.config.MinPoints || n < 2 {
		spread(points)
		return points, nil
	}

	data := normalizedRows(vectors, d)
	dist := pairwise(data)

	// The clustering space keeps local neighbourhoods tight; the map uses a
	// wider graph and a longer diffusion time for a readable global layout.
	coords, err := embed(ctx, dist, diffusion{
		neighbours: r.config.Neighbours,
		scaleAt:    r.config.ScaleNeighbour,
		steps:      1,
		dims:       models.Dims,
	})
	if err != nil {
		return nil, err
	}
	for i := range points {
		for c := 0; c < models.Dims; c++ {
			points[i].Coords10D[c] = coords.At(i, c)
		}
	}

	flat, err := embed(ctx, dist, diffusion{
		neighbours: r.config.PlaneNeighbours,
		scaleAt:    r.config.ScaleNeighbour,
		steps:      2,
		dims:       2,
	})
	if err != nil {
		return nil, err
	}
	plane(flat, points)
	return points, nil
}

// spread places points evenly on the unit circle in input order and leaves
// the clustering coordinates at the origin.
func spread(points []models.ProjectedPoint) {
	step := 2 * math.Pi / float64(len(points))
	for i := range points {
		points[i].X = math.Cos(step * float64(i))
		points[i].Y = math.Sin(step * float64(i))
	}
}

func normalizedRows(vectors []models.EmbeddingVector, d int) *mat.Dense {
	data := mat.NewDense(len(vectors), d, nil)
	row := make([]float64, d)
	for i, v := range vectors {
		for j, x := range v.Vector {
			row[j] = float64(x)
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		data.SetRow(i, row)
	}
	return data
}

// embed runs a diffusion map over the k-nearest-neighbour graph of a
// distance matrix. Each row gets p.dims coordinates, zero padded. Only local
// neighbourhoods carry weight, so tight groups stay tight regardless of how
// far apart they sit globally.
func embed(ctx context.Context, dist [][]float64, p diffusion) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(dist)

	k := min(p.neighbours, n-1)
	scaleAt := min(p.scaleAt, k)
	neighbours := make([][]int, n)
	sigma := make([]float64, n)
	for i := 0; i < n; i++ {
		neighbours[i] = nearest(dist, i, k)
		sigma[i] = math.Max(dist[i][neighbours[i][scaleAt-1]], minScale)
	}

	// Symmetric kNN kernel with self-tuning bandwidths.
	w := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		w.SetSym(i, i, 1)
		for _, j := range neighbours[i] {
			w.SetSym(i, j, math.Exp(-dist[i][j]*dist[i][j]/(sigma[i]*sigma[j])))
		}
	}

	// Density normalisation (alpha = 1) so sampling density does not bend
	// the embedding.
	q := rowSums(w)
	kernel := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			kernel.SetSym(i, j, w.At(i, j)/(q[i]*q[j]))
		}
	}

	// Symmetric conjugate of the Markov matrix, with the stationary
	// direction removed.
	deg := rowSums(kernel)
	root := make([]float64, n)
	for i := range deg {
		root[i] = math.Sqrt(deg[i])
	}
	norm := floats.Norm(root, 2)
	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			a.SetSym(i, j, kernel.At(i, j)/(root[i]*root[j])-root[i]*root[j]/(norm*norm))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		return nil, fmt.Errorf("failed to factorize diffusion operator")
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues come back in ascending order.
	coords := mat.NewDense(n, p.dims, nil)
	for c := 0; c < p.dims && c < n-1; c++ {
		col := n - 1 - c
		lambda := math.Pow(math.Max(values[col], 0), float64(p.steps))
		for i := 0; i < n; i++ {
			coords.Set(i, c, lambda*vecs.At(i, col)/root[i])
		}
	}
	orientColumns(coords, p.dims)
	return coords, nil
}

// pairwise returns the Euclidean distances between rows. Rows are unit
// length, so the order matches cosine distance.
func pairwise(data *mat.Dense) [][]float64 {
	n, _ := data.Dims()
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := floats.Distance(data.RawRowView(i), data.RawRowView(j), 2)
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist
}

// nearest returns the k closest other rows to i, ties broken by index.
func nearest(dist [][]float64, i, k int) []int {
	others := make([]int, 0, len(dist)-1)
	for j := range dist {
		if j != i {
			others = append(others, j)
		}
	}
	sort.SliceStable(others, func(a, b int) bool {
		return dist[i][others[a]] < dist[i][others[b]]
	})
	return others[:k]
}

func rowSums(m mat.Symmetric) []float64 {
	n := m.SymmetricDim()
	sums := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sums[i] += m.At(i, j)
		}
	}
	return sums
}

// plane rescales the map coordinates into [-1, 1].
func plane(coords *mat.Dense, points []models.ProjectedPoint) {
	var maxAbs float64
	for i := range points {
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(coords.At(i, 0)), math.Abs(coords.At(i, 1))))
	}
	if maxAbs == 0 {
		maxAbs = 1
	}
	for i := range points {
		points[i].X = coords.At(i, 0) / maxAbs
		points[i].Y = coords.At(i, 1) / maxAbs
	}
}

// orientColumns flips the sign of each of the first k columns so that its
// largest-magnitude entry is positive. Eigenvectors are only defined up to
// sign; this pins them down.
func orientColumns(m *mat.Dense, k int) {
	r, _ := m.Dims()
	for c := 0; c < k; c++ {
		best, bestIdx := 0.0, 0
		for i := 0; i < r; i++ {
			if v := math.Abs(m.At(i, c)); v > best+1e-12 {
				best, bestIdx = v, i
			}
		}
		if m.At(bestIdx, c) < 0 {
			for i := 0; i < r; i++ {
				m.Set(i, c, -m.At(i, c))
			}
		}
	}
}
