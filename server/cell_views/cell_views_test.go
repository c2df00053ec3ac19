package cell_views

import (
	"bytes"
	"html/template"
	"strings"
	"testing"

	. "racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/server/fastview"

	. "github.com/smartystreets/goconvey/convey"
)

var arithmetic = template.FuncMap{
	"add":  func(i, j int) int { return i + j },
	"sub":  func(i, j int) int { return i - j },
	"mult": func(i, j int) int { return i * j },
	"div":  func(i, j int) int { return i / j },
}

func testSnapshot() (*Grid, reinforcement.PolicySnapshot) {
	g, err := NewGrid([]string{
		"#S.F",
		"#..F",
	})
	So(err, ShouldBeNil)

	snap := reinforcement.PolicySnapshot{
		Values:  make([][]float64, g.Width()),
		Actions: make([][]Action, g.Width()),
		Vehicle: Point{X: 2, Y: 1},
	}
	for x := range snap.Values {
		snap.Values[x] = make([]float64, g.Height())
		snap.Actions[x] = make([]Action, g.Height())
		for y := range snap.Values[x] {
			snap.Values[x][y] = float64(10*x + y)
			snap.Actions[x][y] = Action{Dvx: 1, Dvy: 1}
		}
	}
	return g, snap
}

func TestConvert(t *testing.T) {
	Convey("When a snapshot is converted", t, func() {
		g, snap := testSnapshot()
		cells := NewConverter(g)(snap)

		Convey("Cells are indexed [x][y] and carry their values", func() {
			So(len(cells), ShouldEqual, 4)
			So(len(cells[0]), ShouldEqual, 2)
			So(cells[3][1].X, ShouldEqual, 3)
			So(cells[3][1].Y, ShouldEqual, 1)
			So(cells[3][1].Value, ShouldEqual, 31.0)
		})

		Convey("Cells are filled by type, and the vehicle's cell is highlighted", func() {
			So(cells[0][0].Fill, ShouldEqual, "lightgreen")
			So(cells[1][0].Fill, ShouldEqual, "lightblue")
			So(cells[2][0].Fill, ShouldEqual, "lightgray")
			So(cells[3][0].Fill, ShouldEqual, "lightyellow")
			So(cells[2][1].Fill, ShouldEqual, VEHICLE_FILL)
		})

		Convey("Walls have no policy arrow", func() {
			So(cells[0][0].PolicyArrowScale, ShouldEqual, 0)
			So(cells[1][0].PolicyArrowRotation, ShouldEqual, 135)
			So(cells[1][0].PolicyArrowScale, ShouldEqual, 1)
		})
	})

	Convey("When a snapshot is empty", t, func() {
		g, _ := testSnapshot()
		cells := Convert(g, reinforcement.PolicySnapshot{Vehicle: Point{X: -1, Y: -1}})
		So(cells[2][1].Fill, ShouldEqual, "lightgray")
		So(cells[2][1].Value, ShouldEqual, 0.0)
	})
}

func TestGetDegrees(t *testing.T) {
	Convey("Arrows rotate clockwise from up, with y pointing down", t, func() {
		So(getDegrees(Action{Dvx: 0, Dvy: -1}), ShouldEqual, 0)
		So(getDegrees(Action{Dvx: 1, Dvy: 0}), ShouldEqual, 90)
		So(getDegrees(Action{Dvx: 0, Dvy: 1}), ShouldEqual, 180)
		So(getDegrees(Action{Dvx: -1, Dvy: 0}), ShouldEqual, -90)
		So(getDegrees(Action{Dvx: -1, Dvy: -1}), ShouldEqual, -45)
		So(getDegrees(Action{}), ShouldEqual, 0)
	})
}

func TestValuesGrid(t *testing.T) {
	Convey("When the values grid is updated", t, func() {
		g, snap := testSnapshot()
		cells := Convert(g, snap)
		vg := &ValuesGrid{id: "valuesgrid"}
		ops := vg.onUpdate(cells)

		Convey("Each cell updates its text, arrow and rect", func() {
			So(len(ops), ShouldEqual, 3*4*2)
			So(ops[0].EleId, ShouldEqual, "0-0-value-text")
			So(ops[1].EleId, ShouldEqual, "0-0-policy-arrow")
			So(ops[2].EleId, ShouldEqual, "0-0-cell-rect")
			So(ops[3].Ops[0], ShouldResemble, fastview.Op{Key: "textContent", Value: "1.00"})
		})

		Convey("The template renders every element the updates address", func() {
			t := template.New("page").Funcs(arithmetic)
			name, err := vg.Parse(t)
			So(err, ShouldBeNil)
			_, err = t.Parse(`{{ template "` + name + `" . }}`)
			So(err, ShouldBeNil)

			var buf bytes.Buffer
			So(t.Execute(&buf, cells), ShouldBeNil)
			for _, op := range ops {
				So(buf.String(), ShouldContainSubstring, `id="`+op.EleId+`"`)
			}
		})
	})
}

func TestValueSurface(t *testing.T) {
	Convey("When the value surface is updated", t, func() {
		g, snap := testSnapshot()
		cells := Convert(g, snap)
		vs := NewValueSurface(nil, nil, g.Width(), g.Height())
		ops := vs.onUpdate(cells)

		Convey("There is one polygon per square of four cells, plus the group transform", func() {
			So(len(ops), ShouldEqual, 3*1+1)
			So(ops[0].EleId, ShouldEqual, "0-0-value-polygon")
			So(ops[len(ops)-1].EleId, ShouldEqual, "valuesurface-group")
		})

		Convey("The template renders every polygon", func() {
			t := template.New("page").Funcs(arithmetic)
			name, err := vs.Parse(t)
			So(err, ShouldBeNil)
			_, err = t.Parse(`{{ template "` + name + `" . }}`)
			So(err, ShouldBeNil)

			var buf bytes.Buffer
			So(t.Execute(&buf, cells), ShouldBeNil)
			So(strings.Count(buf.String(), "<polygon"), ShouldEqual, 3)
			for _, op := range ops[:len(ops)-1] {
				So(buf.String(), ShouldContainSubstring, `id="`+op.EleId+`"`)
			}
		})
	})

	Convey("When the grid is a single row there is no surface", t, func() {
		vs := NewValueSurface(nil, nil, 3, 1)
		So(vs.onUpdate([][]Cell{{{}}, {{}}, {{}}}), ShouldBeNil)
	})

	Convey("Values are scaled so the largest magnitude peaks", t, func() {
		So(zscale([][]Cell{{{Value: 0}}}), ShouldEqual, 0.0)
		So(zscale([][]Cell{{{Value: -2}, {Value: 1}}}), ShouldEqual, surfacePeak/2)
	})

	Convey("Fills shade from blue to red", t, func() {
		So(getRGBFill(0, 0, 10), ShouldEqual, "rgb(0%,0%,100%)")
		So(getRGBFill(5, 0, 10), ShouldEqual, "rgb(50%,0%,50%)")
		So(getRGBFill(10, 0, 10), ShouldEqual, "rgb(100%,0%,0%)")
		So(getRGBFill(3, 3, 3), ShouldEqual, "rgb(0%,0%,100%)")
	})
}
