package grid_world

import (
	"fmt"
	"io"
	"math"

	"github.com/logrusorgru/aurora"
)

// VEHICLE is the marker drawn in place of the vehicle's cell.
const VEHICLE = 'C'

// Renderer prints tracks, values and policies to a console, optionally colorized.
// Rendering is purely observational.
type Renderer struct {
	au aurora.Aurora
}

// NewRenderer returns a console renderer; colors toggles ANSI escapes.
func NewRenderer(colors bool) *Renderer {
	return &Renderer{au: aurora.NewAurora(colors)}
}

// Render writes the W x H track, each cell followed by a space, one row per line,
// substituting VEHICLE at the vehicle's cell. A vehicle off the grid is not drawn.
func (r *Renderer) Render(w io.Writer, g *Grid, vehicle Point) (err error) {
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if _, err = fmt.Fprint(w, r.cell(g.At(x, y), x == vehicle.X && y == vehicle.Y)); err != nil {
				return
			}
		}
		if _, err = fmt.Fprintln(w); err != nil {
			return
		}
	}
	return
}

func (r *Renderer) cell(cell rune, isVehicle bool) interface{} {
	if isVehicle {
		return r.au.Bold(r.au.Red(string(VEHICLE) + " "))
	}
	s := string(cell) + " "
	switch cell {
	case WALL:
		return r.au.Green(s)
	case START:
		return r.au.Blue(s)
	case FINISH:
		return r.au.Yellow(s)
	}
	return s
}

// RenderValues prints a per-cell value table indexed [x][y], walls shown as dashes.
func (r *Renderer) RenderValues(w io.Writer, g *Grid, values [][]float64) (err error) {
	total := 0.0
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if g.At(x, y) == WALL {
				_, err = fmt.Fprint(w, r.au.Green("   -    "))
			} else {
				total += values[x][y]
				_, err = fmt.Fprintf(w, "%7.2f ", values[x][y])
			}
			if err != nil {
				return
			}
		}
		if _, err = fmt.Fprintln(w); err != nil {
			return
		}
	}
	_, err = fmt.Fprintf(w, "Total: %.2f\n", total)
	return
}

// RenderPolicy prints the greedy action of each cell as a direction rune.
// This is a hyper simplified description for console-based debugging.
func (r *Renderer) RenderPolicy(w io.Writer, g *Grid, actions [][]Action) (err error) {
	for y := 0; y < g.Height(); y++ {
		for x := 0; x < g.Width(); x++ {
			if g.At(x, y) == WALL {
				_, err = fmt.Fprint(w, r.au.Green("- "))
			} else {
				_, err = fmt.Fprintf(w, "%c ", putMaxDir(actions[x][y]))
			}
			if err != nil {
				return
			}
		}
		if _, err = fmt.Fprintln(w); err != nil {
			return
		}
	}
	return
}

// Returns a rune representing the dominant direction of an action.
// Rows grow downward, so a positive dvy points down.
func putMaxDir(action Action) rune {
	// Dvx has greatest magnitude
	if math.Abs(float64(action.Dvx)) > math.Abs(float64(action.Dvy)) {
		if action.Dvx > 0 {
			return '>'
		}
		return '<'
	}
	// Else, Dvy has the greatest magnitude, or ties on a diagonal
	if action.Dvy > 0 {
		return 'v'
	}
	if action.Dvy < 0 {
		return '^'
	}
	return '='
}
