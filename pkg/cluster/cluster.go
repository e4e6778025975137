// Package cluster groups projected documents by density, leaving sparse
// points in an explicit noise partition.
package cluster

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/xhad/docsort/internal/models"
)

type ClusterConfig struct {
	MinClusterSize int
	// MinSamples sets the neighbourhood used for core distances. Zero means
	// MinClusterSize.
	MinSamples int
	// Adaptive raises the minimum cluster size for large batches.
	Adaptive bool
}

type Clusterer struct {
	config ClusterConfig
}

func NewWithConfig(config ClusterConfig) *Clusterer {
	if config.MinClusterSize < 2 {
		config.MinClusterSize = 2
	}
	return &Clusterer{config: config}
}

// MinClusterSize returns the effective minimum cluster size for n points.
func (c *Clusterer) MinClusterSize(n int) int {
	size := c.config.MinClusterSize
	if c.config.Adaptive {
		size = max(size, n/20)
	}
	return size
}

// Cluster partitions points by their 10D coordinates. The noise partition,
// when present, comes first; the remaining clusters are numbered from 0 in
// order of their first member.
func (c *Clusterer) Cluster(ctx context.Context, points []models.ProjectedPoint) ([]models.Cluster, error) {
	if len(points) == 0 {
		return nil, nil
	}

	minSize := c.MinClusterSize(len(points))
	minSamples := c.config.MinSamples
	if minSamples <= 0 {
		minSamples = minSize
	}

	dist := distances(points)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw := hdbscan(dist, minSize, minSamples)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return Group(points, raw), nil
}

// Group turns one label per point into clusters with centroids. Negative
// labels are noise. Label ids are renumbered in order of first member.
func Group(points []models.ProjectedPoint, labels []int) []models.Cluster {
	renumber := map[int]int{}
	var (
		noise    *models.Cluster
		clusters []models.Cluster
	)
	for i, p := range points {
		raw := labels[i]
		if raw < 0 {
			if noise == nil {
				noise = &models.Cluster{LabelID: models.NoiseLabel}
			}
			noise.Members = append(noise.Members, p.DocumentID)
			continue
		}
		id, ok := renumber[raw]
		if !ok {
			id = len(clusters)
			renumber[raw] = id
			clusters = append(clusters, models.Cluster{LabelID: id})
		}
		clusters[id].Members = append(clusters[id].Members, p.DocumentID)
	}

	out := make([]models.Cluster, 0, len(clusters)+1)
	if noise != nil {
		out = append(out, *noise)
	}
	out = append(out, clusters...)

	byID := make(map[string]models.ProjectedPoint, len(points))
	for _, p := range points {
		byID[p.DocumentID] = p
	}
	for i := range out {
		out[i].Centroid = Centroid(out[i].Members, byID)
	}
	return out
}

// Centroid is the mean 10D position of the given members.
func Centroid(members []string, points map[string]models.ProjectedPoint) [models.Dims]float64 {
	var centroid [models.Dims]float64
	if len(members) == 0 {
		return centroid
	}
	for _, id := range members {
		p := points[id]
		for d := range centroid {
			centroid[d] += p.Coords10D[d]
		}
	}
	for d := range centroid {
		centroid[d] /= float64(len(members))
	}
	return centroid
}

// Distance is the Euclidean distance between two 10D positions.
func Distance(a, b [models.Dims]float64) float64 {
	return floats.Distance(a[:], b[:], 2)
}

func distances(points []models.ProjectedPoint) [][]float64 {
	n := len(points)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Distance(points[i].Coords10D, points[j].Coords10D)
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}
