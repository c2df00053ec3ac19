package reinforcement

import (
	"errors"
	"math"

	. "racetrack/grid_world"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Landing cell weights of the expected value: the intended cell carries the slip chance,
// each of its 8 neighbours a tenth.
const (
	INTENDED_WEIGHT  = 0.2
	NEIGHBOUR_WEIGHT = 0.1
)

// ErrNotConverged is returned alongside the last table when the sweep cap was hit.
// The table is still usable.
var ErrNotConverged = errors.New("value iteration did not converge")

// ValueTable holds one value per cell. Rows of the matrix are y, columns x.
type ValueTable struct {
	values *mat.Dense
}

func (vt *ValueTable) At(x, y int) float64 {
	return vt.values.At(y, x)
}

// Dims returns the width and height of the table.
func (vt *ValueTable) Dims() (width, height int) {
	height, width = vt.values.Dims()
	return
}

// Values copies the table into an [x][y] slice.
func (vt *ValueTable) Values() [][]float64 {
	width, height := vt.Dims()
	values := newTable[float64](width, height)
	for x := range values {
		for y := range values[x] {
			values[x][y] = vt.At(x, y)
		}
	}
	return values
}

// ValueIteration solves for cell values under a binary reward, 1 at finish cells and 0
// elsewhere, by synchronous Bellman sweeps until no value changes by more than threshold.
// A positive maxIterations caps the number of sweeps; hitting it returns the last table with
// ErrNotConverged. Wall cells are never updated and stay 0.
func ValueIteration(
	g *Grid,
	threshold, gamma float64,
	maxIterations int,
) (table *ValueTable, sweeps int, err error) {
	rewards := mat.NewDense(g.Height(), g.Width(), nil)
	for _, f := range g.Finishes() {
		rewards.Set(f.Y, f.X, 1)
	}

	cur := mat.DenseCopyOf(rewards)
	prev := mat.NewDense(g.Height(), g.Width(), nil)
	for {
		sweeps++
		prev.Copy(cur)
		g.Visit(func(x, y int, cell rune) {
			if cell == WALL {
				return
			}
			// The zero action always lands on the cell itself, so best is always set.
			best := math.Inf(-1)
			for _, action := range Actions() {
				tx, ty := x+action.Dvx, y+action.Dvy
				if !passable(g, tx, ty) {
					continue
				}
				best = math.Max(best, rewards.At(y, x)+gamma*expectedValue(g, prev, tx, ty))
			}
			cur.Set(y, x, best)
		})

		if maxDivergence(cur, prev) <= threshold {
			return &ValueTable{values: cur}, sweeps, nil
		}
		if maxIterations > 0 && sweeps >= maxIterations {
			return &ValueTable{values: cur}, sweeps, ErrNotConverged
		}
	}
}

// expectedValue of targeting tx/ty: 0.2 of its own value plus 0.1 of each passable neighbour.
func expectedValue(g *Grid, values *mat.Dense, tx, ty int) float64 {
	expected := INTENDED_WEIGHT * values.At(ty, tx)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			nx, ny := tx+dx, ty+dy
			if (dx == 0 && dy == 0) || !passable(g, nx, ny) {
				continue
			}
			expected += NEIGHBOUR_WEIGHT * values.At(ny, nx)
		}
	}
	return expected
}

func passable(g *Grid, x, y int) bool {
	return g.InBounds(x, y) && g.At(x, y) != WALL
}

func maxDivergence(a, b *mat.Dense) float64 {
	return floats.Distance(a.RawMatrix().Data, b.RawMatrix().Data, math.Inf(1))
}
