package grid_world

import (
	"io"

	"github.com/fogleman/gg"
)

// fills follow the svg view's palette.
var fills = map[rune][3]float64{
	WALL:   {0.56, 0.93, 0.56}, // lightgreen
	OPEN:   {0.83, 0.83, 0.83}, // lightgray
	START:  {0.68, 0.85, 0.90}, // lightblue
	FINISH: {1.00, 1.00, 0.88}, // lightyellow
}

// Snapshot is a raster drawing of a track and the vehicle.
type Snapshot struct {
	dc *gg.Context
}

// DrawPNG draws the track with square cells of cellSize pixels and the vehicle as a red disc.
// A vehicle off the grid is not drawn.
func DrawPNG(g *Grid, vehicle Point, cellSize int) *Snapshot {
	if cellSize <= 0 {
		cellSize = 1
	}
	size := float64(cellSize)
	dc := gg.NewContext(g.Width()*cellSize, g.Height()*cellSize)

	g.Visit(func(x, y int, cell rune) {
		fill := fills[cell]
		dc.SetRGB(fill[0], fill[1], fill[2])
		dc.DrawRectangle(float64(x)*size, float64(y)*size, size, size)
		dc.Fill()
	})

	// grid lines
	dc.SetRGB(0.5, 0.5, 0.5)
	dc.SetLineWidth(1)
	for x := 0; x <= g.Width(); x++ {
		dc.DrawLine(float64(x)*size, 0, float64(x)*size, float64(g.Height())*size)
	}
	for y := 0; y <= g.Height(); y++ {
		dc.DrawLine(0, float64(y)*size, float64(g.Width())*size, float64(y)*size)
	}
	dc.Stroke()

	if g.InBounds(vehicle.X, vehicle.Y) {
		dc.SetRGB(0.85, 0.1, 0.1)
		dc.DrawCircle((float64(vehicle.X)+0.5)*size, (float64(vehicle.Y)+0.5)*size, size*0.35)
		dc.Fill()
	}

	return &Snapshot{dc: dc}
}

// SavePNG writes the snapshot to a png file.
func (s *Snapshot) SavePNG(path string) error {
	return s.dc.SavePNG(path)
}

// EncodePNG writes the snapshot as png to w.
func (s *Snapshot) EncodePNG(w io.Writer) error {
	return s.dc.EncodePNG(w)
}
