package grid_world

import (
	"gonum.org/v1/gonum/mat"
)

const (
	// WALL_REWARD is the terminal penalty for driving into a wall.
	WALL_REWARD = -1.0
	// REWARD_DECAY divides a neighbor's reward per propagation hop away from the finish line.
	REWARD_DECAY = 1.1
)

// RewardField gives the desirability of every cell: walls are -1, finish cells are W*H,
// and every other cell decays by REWARD_DECAY per 8-connected hop from the nearest finish.
// Cells with no path to a finish keep 0. The field is immutable once built.
type RewardField struct {
	// rows are y, columns are x
	values *mat.Dense
}

// NewRewardField runs a multi-source breadth-first propagation seeded from every finish cell.
// Each popped non-wall cell absorbs the decayed reward of its in-bounds neighbors,
// keeping the larger of its own value and neighbor/REWARD_DECAY, and enqueues the
// neighbors that have not been touched. Walls are enqueued but never expanded or updated.
func NewRewardField(g *Grid) *RewardField {
	width, height := g.Width(), g.Height()
	values := mat.NewDense(height, width, nil)
	touched := make([][]bool, width)
	for x := range touched {
		touched[x] = make([]bool, height)
	}

	toVisit := make([]Point, 0, width*height)
	finishReward := float64(width * height)
	g.Visit(func(x, y int, cell rune) {
		switch cell {
		case WALL:
			values.Set(y, x, WALL_REWARD)
		case FINISH:
			values.Set(y, x, finishReward)
			toVisit = append(toVisit, Point{x, y})
			touched[x][y] = true
		}
	})

	for len(toVisit) > 0 {
		cur := toVisit[0]
		toVisit = toVisit[1:]
		if g.At(cur.X, cur.Y) == WALL {
			continue
		}

		best := values.At(cur.Y, cur.X)
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				nx, ny := cur.X+dx, cur.Y+dy
				if !g.InBounds(nx, ny) {
					continue
				}
				if !touched[nx][ny] {
					toVisit = append(toVisit, Point{nx, ny})
					touched[nx][ny] = true
				}
				if decayed := values.At(ny, nx) / REWARD_DECAY; decayed > best {
					best = decayed
				}
			}
		}
		values.Set(cur.Y, cur.X, best)
	}

	return &RewardField{values: values}
}

// At returns the reward of the in-bounds cell x/y.
func (rf *RewardField) At(x, y int) float64 {
	return rf.values.At(y, x)
}

// Dims returns the width and height of the field.
func (rf *RewardField) Dims() (width, height int) {
	height, width = rf.values.Dims()
	return
}

// Matrix returns a copy of the field with rows indexed by y and columns by x.
func (rf *RewardField) Matrix() *mat.Dense {
	return mat.DenseCopyOf(rf.values)
}
