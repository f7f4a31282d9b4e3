package ble

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/mds"
)

// Position is an address placed on a 2-D plane, in metres. Positions
// recovered by RelativePositions are relative: only the distances between
// them carry meaning.
type Position struct {
	Address string  `json:"address"`
	X       float64 `json:"x_m"`
	Y       float64 `json:"y_m"`
	// Known is set when the position was supplied rather than estimated.
	Known bool `json:"known"`
}

// KnownPositions maps an address to a surveyed (x, y) in metres.
type KnownPositions map[string][2]float64

// Validate rejects empty addresses and non-finite coordinates.
func (k KnownPositions) Validate() error {
	for addr, p := range k {
		if addr == "" {
			return fmt.Errorf("known position with empty address: %w", ErrInvalidParameter)
		}
		for _, v := range p {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("known position for %s is not finite: %w", addr, ErrInvalidParameter)
			}
		}
	}
	return nil
}

// Baselines returns the median RSSI of each timeline, in timeline order.
func Baselines(timelines []Timeline) []float64 {
	out := make([]float64, len(timelines))
	for i, tl := range timelines {
		out[i] = median(tl.RSSIs())
	}
	return out
}

// DistanceMatrix builds the symmetric pairwise dissimilarity between
// timelines: the model distance of the weaker of the two median RSSIs.
// The diagonal is zero.
func DistanceMatrix(timelines []Timeline, model PathLossModel) (*mat.SymDense, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	n := len(timelines)
	if n == 0 {
		return nil, ErrEmptyInput
	}
	base := Baselines(timelines)
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, model.Distance(math.Min(base[i], base[j])))
		}
	}
	return d, nil
}

// RelativePositions places each timeline's address on a plane by classical
// (Torgerson) multidimensional scaling of DistanceMatrix. Coordinates are
// shifted so the minimum x and y are zero; they are not rescaled, so the
// recovered pairwise distances approximate the matrix in metres.
func RelativePositions(timelines []Timeline, model PathLossModel) ([]Position, error) {
	if len(timelines) == 0 {
		return nil, nil
	}
	dis, err := DistanceMatrix(timelines, model)
	if err != nil {
		return nil, err
	}

	n := len(timelines)
	out := make([]Position, n)
	for i, tl := range timelines {
		out[i].Address = tl.Address
	}
	if n == 1 {
		return out, nil
	}

	var coords mat.Dense
	k, _ := mds.TorgersonScaling(&coords, nil, dis)
	if k == 0 || coords.IsEmpty() {
		return nil, fmt.Errorf("scaling %d addresses: %w", n, ErrInsufficientData)
	}

	minX, minY := math.Inf(1), math.Inf(1)
	for i := range out {
		out[i].X = coords.At(i, 0)
		if k > 1 {
			out[i].Y = coords.At(i, 1)
		}
		minX = math.Min(minX, out[i].X)
		minY = math.Min(minY, out[i].Y)
	}
	for i := range out {
		out[i].X -= minX
		out[i].Y -= minY
	}
	return out, nil
}

// ResolvePositions uses the known positions when any are given and falls
// back to RelativePositions otherwise. Known positions are returned sorted
// by address.
func ResolvePositions(timelines []Timeline, model PathLossModel, known KnownPositions) ([]Position, error) {
	if len(known) == 0 {
		return RelativePositions(timelines, model)
	}
	if err := known.Validate(); err != nil {
		return nil, err
	}
	out := make([]Position, 0, len(known))
	for addr, p := range known {
		out = append(out, Position{Address: addr, X: p[0], Y: p[1], Known: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
