package cluster

import (
	"math"
	"sort"
)

const (
	// Noise is the label assigned to points with no sufficiently dense neighbourhood.
	Noise = -1
	// unvisited marks points the scan has not reached yet.
	unvisited = 0

	// estimatedPointsPerCell is used for initial spatial index capacity estimation.
	estimatedPointsPerCell = 4
)

// Point is a 2D feature vector.
type Point struct {
	X, Y float64
}

// Params contains parameters for the DBSCAN clustering algorithm.
type Params struct {
	Eps    float64 // Neighbourhood radius in feature units
	MinPts int     // Minimum neighbourhood size (including the point itself) for a core point
}

// SpatialIndex provides efficient neighbour queries using a regular grid.
// Cell size should match the DBSCAN eps parameter so a 3x3 cell
// neighbourhood covers every candidate.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell ID → point indices
}

// NewSpatialIndex creates a spatial index with the specified cell size.
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the spatial index from a set of points.
func (si *SpatialIndex) Build(points []Point) {
	si.Grid = make(map[int64][]int, len(points)/estimatedPointsPerCell+1)

	for i, p := range points {
		cx, cy := si.cell(p)
		id := pairCells(cx, cy)
		si.Grid[id] = append(si.Grid[id], i)
	}
}

func (si *SpatialIndex) cell(p Point) (int64, int64) {
	return int64(math.Floor(p.X / si.CellSize)), int64(math.Floor(p.Y / si.CellSize))
}

// pairCells maps signed cell coordinates to a unique id: zigzag encoding
// followed by Szudzik's pairing function.
func pairCells(cellX, cellY int64) int64 {
	a := zigzag(cellX)
	b := zigzag(cellY)
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

func zigzag(v int64) int64 {
	if v >= 0 {
		return 2 * v
	}
	return -2*v - 1
}

// RegionQuery returns indices of all points within eps (Euclidean) of
// points[idx], including idx itself. Indices are returned in ascending order.
func (si *SpatialIndex) RegionQuery(points []Point, idx int, eps float64) []int {
	p := points[idx]
	eps2 := eps * eps
	cx, cy := si.cell(p)

	var neighbors []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, candidateIdx := range si.Grid[pairCells(cx+dx, cy+dy)] {
				c := points[candidateIdx]
				ddx := c.X - p.X
				ddy := c.Y - p.Y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, candidateIdx)
				}
			}
		}
	}

	// Neighbouring cells are visited in offset order, so indices from
	// different cells interleave; sort to keep expansion order stable.
	sort.Ints(neighbors)
	return neighbors
}

// DBSCAN labels each point with a cluster number in 1..n or Noise and
// returns the labels together with n. The result depends only on the points
// (and their order) and params. Callers are expected to have validated
// params; a non-positive Eps or MinPts below 1 labels everything as Noise.
func DBSCAN(points []Point, params Params) ([]int, int) {
	if len(points) == 0 {
		return nil, 0
	}

	labels := make([]int, len(points))
	if params.Eps <= 0 || params.MinPts < 1 {
		for i := range labels {
			labels[i] = Noise
		}
		return labels, 0
	}

	si := NewSpatialIndex(params.Eps)
	si.Build(points)

	clusterID := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}

		neighbors := si.RegionQuery(points, i, params.Eps)
		if len(neighbors) < params.MinPts {
			labels[i] = Noise
			continue
		}

		clusterID++
		expandCluster(points, si, labels, i, neighbors, clusterID, params)
	}

	return labels, clusterID
}

// expandCluster grows a cluster from a core point using a work queue.
func expandCluster(points []Point, si *SpatialIndex, labels []int,
	seedIdx int, queue []int, clusterID int, params Params) {

	labels[seedIdx] = clusterID

	for j := 0; j < len(queue); j++ {
		idx := queue[j]

		if labels[idx] == Noise {
			labels[idx] = clusterID // border point
		}
		if labels[idx] != unvisited {
			continue
		}

		labels[idx] = clusterID
		next := si.RegionQuery(points, idx, params.Eps)
		if len(next) >= params.MinPts {
			queue = append(queue, next...)
		}
	}
}

// Centroids returns the mean point of every cluster label in 1..n, indexed
// by label-1.
func Centroids(points []Point, labels []int, n int) []Point {
	sums := make([]Point, n)
	counts := make([]int, n)
	for i, l := range labels {
		if l <= 0 {
			continue
		}
		sums[l-1].X += points[i].X
		sums[l-1].Y += points[i].Y
		counts[l-1]++
	}
	for k := range sums {
		if counts[k] > 0 {
			sums[k].X /= float64(counts[k])
			sums[k].Y /= float64(counts[k])
		}
	}
	return sums
}

// Relabel renumbers clusters 0..n-1 in ascending centroid order (X, then Y)
// so label numbers are reproducible regardless of scan order. Noise is kept.
func Relabel(points []Point, labels []int, n int) []int {
	centroids := Centroids(points, labels, n)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := centroids[order[a]], centroids[order[b]]
		if ca.X != cb.X {
			return ca.X < cb.X
		}
		return ca.Y < cb.Y
	})

	rank := make([]int, n)
	for newID, old := range order {
		rank[old] = newID
	}

	out := make([]int, len(labels))
	for i, l := range labels {
		if l <= 0 {
			out[i] = Noise
			continue
		}
		out[i] = rank[l-1]
	}
	return out
}
