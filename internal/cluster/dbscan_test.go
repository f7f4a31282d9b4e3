package cluster

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blob returns n points spaced 0.1 apart along X starting at (x, y).
func blob(x, y float64, n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{X: x + float64(i)*0.1, Y: y}
	}
	return pts
}

func TestDBSCAN_EmptyInput(t *testing.T) {
	labels, n := DBSCAN(nil, Params{Eps: 3, MinPts: 5})
	assert.Nil(t, labels)
	assert.Zero(t, n)
}

func TestDBSCAN_SinglePointIsNoise(t *testing.T) {
	labels, n := DBSCAN([]Point{{X: -60, Y: 2}}, Params{Eps: 3, MinPts: 5})
	assert.Equal(t, []int{Noise}, labels)
	assert.Zero(t, n)
}

func TestDBSCAN_SinglePointMinPtsOne(t *testing.T) {
	labels, n := DBSCAN([]Point{{X: -60, Y: 2}}, Params{Eps: 3, MinPts: 1})
	assert.Equal(t, []int{1}, labels)
	assert.Equal(t, 1, n)
}

func TestDBSCAN_InvalidParamsAllNoise(t *testing.T) {
	pts := blob(0, 0, 6)
	labels, n := DBSCAN(pts, Params{Eps: 0, MinPts: 2})
	assert.Zero(t, n)
	for _, l := range labels {
		assert.Equal(t, Noise, l)
	}
}

func TestDBSCAN_TwoBlobsAndOutlier(t *testing.T) {
	pts := append(blob(-70, 3, 5), blob(-50, 2, 5)...)
	pts = append(pts, Point{X: -90, Y: 10})

	labels, n := DBSCAN(pts, Params{Eps: 3, MinPts: 5})
	require.Len(t, labels, len(pts))
	assert.Equal(t, 2, n)

	for i := 0; i < 5; i++ {
		assert.Equal(t, labels[0], labels[i])
		assert.Equal(t, labels[5], labels[5+i])
	}
	assert.NotEqual(t, labels[0], labels[5])
	assert.Equal(t, Noise, labels[10])
}

func TestDBSCAN_BorderPointJoinsCluster(t *testing.T) {
	// Five tightly packed core points and one point reachable only from the
	// edge of the blob: not core itself, but within eps of a core point.
	pts := append(blob(0, 0, 5), Point{X: 0.4 + 2.9, Y: 0})
	labels, n := DBSCAN(pts, Params{Eps: 3, MinPts: 5})
	assert.Equal(t, 1, n)
	assert.Equal(t, labels[0], labels[5])
}

func TestDBSCAN_NegativeCoordinatesAcrossCells(t *testing.T) {
	// Points straddle the zero cell boundary on both axes.
	pts := []Point{{X: -0.5, Y: -0.5}, {X: 0.5, Y: 0.5}, {X: -0.5, Y: 0.5}, {X: 0.5, Y: -0.5}}
	labels, n := DBSCAN(pts, Params{Eps: 1.5, MinPts: 4})
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{1, 1, 1, 1}, labels)
}

func TestDBSCAN_Deterministic(t *testing.T) {
	pts := append(blob(-70, 3, 7), blob(-62, 6, 6)...)
	pts = append(pts, blob(-40, 1, 2)...)
	params := Params{Eps: 3, MinPts: 5}

	first, n1 := DBSCAN(pts, params)
	for i := 0; i < 10; i++ {
		again, n2 := DBSCAN(pts, params)
		require.Equal(t, n1, n2)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("labels changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestRegionQuery_IncludesSelfSorted(t *testing.T) {
	pts := []Point{{X: 5, Y: 5}, {X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	si := NewSpatialIndex(1.5)
	si.Build(pts)

	got := si.RegionQuery(pts, 1, 1.5)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestPairCells_Unique(t *testing.T) {
	seen := make(map[int64][2]int64)
	for x := int64(-20); x <= 20; x++ {
		for y := int64(-20); y <= 20; y++ {
			id := pairCells(x, y)
			if prev, ok := seen[id]; ok {
				t.Fatalf("cell (%d,%d) collides with (%d,%d)", x, y, prev[0], prev[1])
			}
			seen[id] = [2]int64{x, y}
		}
	}
}

func TestRelabel_OrdersByCentroid(t *testing.T) {
	// The blob found first by the scan has the larger X centroid.
	pts := append(blob(-50, 2, 5), blob(-70, 3, 5)...)
	labels, n := DBSCAN(pts, Params{Eps: 3, MinPts: 5})
	require.Equal(t, 2, n)
	assert.Equal(t, 1, labels[0])

	relabelled := Relabel(pts, labels, n)
	assert.Equal(t, 1, relabelled[0])
	assert.Equal(t, 0, relabelled[5])
}

func TestRelabel_KeepsNoise(t *testing.T) {
	pts := []Point{{X: 0, Y: 0}, {X: 100, Y: 100}}
	got := Relabel(pts, []int{1, Noise}, 1)
	assert.Equal(t, []int{0, Noise}, got)
}
