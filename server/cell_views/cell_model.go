// cell_views contains views derived from the Cell view-model.
package cell_views

import (
	"math"

	. "racetrack/grid_world"
	"racetrack/reinforcement"
)

// Cell flattens a policy snapshot into per-cell view parameters. Track rows are already
// top-down, matching the svg coordinate system, so X and Y are the grid coordinates.
// As a rule of thumb, Cell fields should be immediately usable as view parameters.
type Cell struct {
	X, Y                int
	Value               float64
	PolicyArrowRotation int
	PolicyArrowScale    int
	Fill                string
}

// NewConverter returns the conversion from snapshots of policies on g to [x][y] cells.
func NewConverter(g *Grid) func(reinforcement.PolicySnapshot) [][]Cell {
	return func(snap reinforcement.PolicySnapshot) [][]Cell {
		return Convert(g, snap)
	}
}

// Convert builds the [x][y] cells for a snapshot. The vehicle's cell is highlighted.
func Convert(g *Grid, snap reinforcement.PolicySnapshot) (cells [][]Cell) {
	cells = make([][]Cell, g.Width())
	for x := range cells {
		cells[x] = make([]Cell, g.Height())
	}

	g.Visit(func(x, y int, cellType rune) {
		cell := Cell{
			X:    x,
			Y:    y,
			Fill: getFill(cellType),
		}
		if x < len(snap.Values) && y < len(snap.Values[x]) {
			cell.Value = snap.Values[x][y]
		}
		if x < len(snap.Actions) && y < len(snap.Actions[x]) && cellType != WALL {
			action := snap.Actions[x][y]
			cell.PolicyArrowRotation = getDegrees(action)
			cell.PolicyArrowScale = getScale(action)
		}
		if snap.Vehicle.X == x && snap.Vehicle.Y == y {
			cell.Fill = VEHICLE_FILL
		}
		cells[x][y] = cell
	})
	return
}

const VEHICLE_FILL = "tomato"

func getScale(action Action) int {
	return int(math.Hypot(float64(action.Dvx), float64(action.Dvy)))
}

// getDegrees converts an acceleration into the degrees passed to svg's rotate() for an
// upward arrow rune: clockwise from vertical, with y pointing down.
func getDegrees(action Action) int {
	if action.Dvx == 0 && action.Dvy == 0 {
		return 0
	}
	rad := math.Atan2(float64(action.Dvx), float64(-action.Dvy))
	return int(math.Round(rad * 180 / math.Pi))
}

func getFill(cellType rune) (fill string) {
	switch cellType {
	case WALL:
		fill = "lightgreen"
	case OPEN:
		fill = "lightgray"
	case START:
		fill = "lightblue"
	case FINISH:
		fill = "lightyellow"
	}
	return
}
