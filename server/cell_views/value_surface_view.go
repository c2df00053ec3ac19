package cell_views

import (
	"fmt"
	"html/template"
	"math"

	"racetrack/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// ValueSurface plots the values as an isometric projection of the surface (x, y, value).
// Each polygon spans four adjacent cells and is shaded by their mean value.
type ValueSurface struct {
	id      string
	updates <-chan []fastview.EleUpdate

	// Canvas size in pixels, fixed by the grid dimensions.
	width, height float64
	xyscale       float64 // pixels per x or y unit
	sinAng        float64
	cosAng        float64
}

const (
	surfaceCellDim = 40.0
	// Angle of the x and y axes.
	surfaceAngle = math.Pi / 6
	// Height in pixels of the largest absolute value.
	surfacePeak = surfaceCellDim * 3
)

// NewValueSurface builds the view for a grid of xCells by yCells.
func NewValueSurface(
	done <-chan struct{},
	cells <-chan [][]Cell,
	xCells, yCells int,
) (vs *ValueSurface) {
	vs = &ValueSurface{
		id:      "valuesurface",
		width:   float64(xCells) * surfaceCellDim,
		height:  float64(yCells) * surfaceCellDim,
		xyscale: surfaceCellDim,
		sinAng:  math.Sin(surfaceAngle),
		cosAng:  math.Cos(surfaceAngle),
	}
	vs.updates = channerics.Convert(done, cells, vs.onUpdate)
	return
}

func (vs *ValueSurface) Updates() <-chan []fastview.EleUpdate {
	return vs.updates
}

// zscale maps values to pixels so that the largest absolute value peaks at surfacePeak.
func zscale(cells [][]Cell) float64 {
	peak := 0.0
	for _, column := range cells {
		for _, cell := range column {
			peak = math.Max(peak, math.Abs(cell.Value))
		}
	}
	if peak == 0 {
		return 0
	}
	return surfacePeak / peak
}

// project applies the isometric projection to a point of the surface.
func (vs *ValueSurface) project(x, y, z, zscale float64) (float64, float64) {
	sx := (x - y) * vs.cosAng * vs.xyscale
	sy := (x+y)*vs.sinAng*vs.xyscale - z*zscale
	return sx, sy
}

// polygon projects the quad with corners a (bottom left), b (top left), c (top right) and
// d (bottom right).
func (vs *ValueSurface) polygon(id string, zscale float64, a, b, c, d Cell) (p *surfacePolygon) {
	p = &surfacePolygon{Id: id}
	for i, cell := range []Cell{a, b, c, d} {
		p.xs[i], p.ys[i] = vs.project(float64(cell.X), float64(cell.Y), cell.Value, zscale)
	}
	return
}

func (vs *ValueSurface) polyPoints(zscale float64, a, b, c, d Cell) string {
	return vs.polygon("", zscale, a, b, c, d).String()
}

type surfacePolygon struct {
	Id     string
	xs, ys [4]float64
}

// String returns the svg 'points' attribute, truncated to ints.
func (p *surfacePolygon) String() string {
	return fmt.Sprintf("%d,%d %d,%d %d,%d %d,%d",
		int(p.xs[0]), int(p.ys[0]),
		int(p.xs[1]), int(p.ys[1]),
		int(p.xs[2]), int(p.ys[2]),
		int(p.xs[3]), int(p.ys[3]),
	)
}

func (p *surfacePolygon) bounds() (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for i := range p.xs {
		minX, maxX = math.Min(minX, p.xs[i]), math.Max(maxX, p.xs[i])
		minY, maxY = math.Min(minY, p.ys[i]), math.Max(maxY, p.ys[i])
	}
	return
}

// onUpdate reshapes and reshades every polygon, then rescales the group to fit the canvas.
func (vs *ValueSurface) onUpdate(cells [][]Cell) (ops []fastview.EleUpdate) {
	if len(cells) < 2 || len(cells[0]) < 2 {
		return nil
	}

	z := zscale(cells)
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	for _, column := range cells {
		for _, cell := range column {
			minVal = math.Min(minVal, cell.Value)
			maxVal = math.Max(maxVal, cell.Value)
		}
	}

	xmin, ymin := math.Inf(1), math.Inf(1)
	xmax, ymax := math.Inf(-1), math.Inf(-1)
	for xi, column := range cells[:len(cells)-1] {
		for yi, cell := range column[:len(column)-1] {
			a, b := cells[xi+1][yi], cells[xi][yi]
			c, d := cells[xi][yi+1], cells[xi+1][yi+1]
			p := vs.polygon(fmt.Sprintf("%d-%d-value-polygon", cell.X, cell.Y), z, a, b, c, d)

			pMinX, pMinY, pMaxX, pMaxY := p.bounds()
			xmin, xmax = math.Min(xmin, pMinX), math.Max(xmax, pMaxX)
			ymin, ymax = math.Min(ymin, pMinY), math.Max(ymax, pMaxY)

			mean := (a.Value + b.Value + c.Value + d.Value) / 4
			ops = append(ops, fastview.EleUpdate{
				EleId: p.Id,
				Ops: []fastview.Op{
					{Key: "points", Value: p.String()},
					{Key: "fill", Value: getRGBFill(mean, minVal, maxVal)},
				},
			})
		}
	}

	// Shrink to fit, never enlarge.
	scaler := math.Min(
		math.Min(
			math.Abs(vs.width/(xmax-xmin)),
			math.Abs(vs.height/(ymax-ymin)),
		),
		1.0,
	)
	ops = append(ops, fastview.EleUpdate{
		EleId: vs.id + "-group",
		Ops: []fastview.Op{
			{
				Key:   "transform",
				Value: fmt.Sprintf("scale(%f) translate(%d %d)", scaler, int(-xmin), int(-ymin)),
			},
		},
	})
	return
}

// getRGBFill shades from blue at minVal to red at maxVal.
func getRGBFill(val, minVal, maxVal float64) string {
	redPct := 0
	if span := maxVal - minVal; span > 0 {
		redPct = int(math.Round(100 * (val - minVal) / span))
	}
	return fmt.Sprintf("rgb(%d%%,0%%,%d%%)", redPct, 100-redPct)
}

// Parse returns an svg of polygons plotting the value surface as a 2D projection.
func (vs *ValueSurface) Parse(t *template.Template) (name string, err error) {
	name = vs.id
	// Polygon order matters: later polygons obscure earlier ones, forming the surface.
	_, err = t.Funcs(template.FuncMap{
		"getPolyPoints": vs.polyPoints,
		"zscale":        zscale,
	}).Parse(
		`{{ define "` + name + `" }}
		<div style="padding:40px;">
			{{ $x_cells := len . }}
			{{ $y_cells := len (index . 0) }}
			{{ $num_x_polys := sub $x_cells 1 }}
			{{ $num_y_polys := sub $y_cells 1 }}
			{{ $z := zscale . }}
			<svg id="` + vs.id + `" xmlns='http://www.w3.org/2000/svg'
				width="` + fmt.Sprintf("%d", int(vs.width*2)) + `px"
				height="` + fmt.Sprintf("%d", int(vs.height*2)) + `px"
				style="shape-rendering: crispEdges; stroke: lightgrey; stroke-opacity: 1.0; stroke-width: 1;">
				<g id="` + vs.id + `-group" transform="translate(0 0)">
				{{ $cells := . }}
				{{ range $xi, $column := $cells }}
					{{ if lt $xi $num_x_polys }}
						{{ range $j, $unused := $column }}
							{{ $yi := sub (sub (len $column) $j) 1 }}
							{{ $cell := index $column $yi }}
							{{ if lt $yi $num_y_polys }}
								<polygon id="{{$cell.X}}-{{$cell.Y}}-value-polygon"
									fill="black" fill-opacity="1.0"
									points="{{ getPolyPoints $z (index $cells (add $xi 1) $yi) (index $cells $xi $yi) (index $cells $xi (add $yi 1)) (index $cells (add $xi 1) (add $yi 1)) }}" />
							{{ end }}
						{{ end }}
					{{ end }}
				{{ end }}
				</g>
			</svg>
		</div>
		{{ end }}`)
	return
}
