package grid_world

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRender(t *testing.T) {
	Convey("When a track is rendered without colors", t, func() {
		g, err := Parse(strings.NewReader(cornerTrack))
		So(err, ShouldBeNil)
		r := NewRenderer(false)

		Convey("The vehicle marker replaces its cell", func() {
			var buf bytes.Buffer
			So(r.Render(&buf, g, Point{2, 2}), ShouldBeNil)
			So(buf.String(), ShouldEqual, "F . . \n. . . \n. . C \n")
		})

		Convey("A vehicle off the grid is not drawn", func() {
			var buf bytes.Buffer
			So(r.Render(&buf, g, Point{5, -1}), ShouldBeNil)
			So(buf.String(), ShouldEqual, "F . . \n. . . \n. . S \n")
		})

		Convey("Values and policies are printed per cell", func() {
			values := [][]float64{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}
			var buf bytes.Buffer
			So(r.RenderValues(&buf, g, values), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "   1.00 ")
			So(buf.String(), ShouldContainSubstring, "Total: 45.00")

			actions := [][]Action{
				{{1, 0}, {-1, 0}, {0, 1}},
				{{0, -1}, {0, 0}, {1, 1}},
				{{1, 0}, {1, 0}, {1, 0}},
			}
			buf.Reset()
			So(r.RenderPolicy(&buf, g, actions), ShouldBeNil)
			So(buf.String(), ShouldEqual, "> ^ > \n< = > \nv v > \n")
		})
	})

	Convey("When a track is drawn to png", t, func() {
		g, err := NewGrid(DebugTrack)
		So(err, ShouldBeNil)

		var buf bytes.Buffer
		So(DrawPNG(g, Point{X: 1, Y: 7}, 10).EncodePNG(&buf), ShouldBeNil)
		img, err := png.Decode(&buf)
		So(err, ShouldBeNil)
		So(img.Bounds().Dx(), ShouldEqual, 60)
		So(img.Bounds().Dy(), ShouldEqual, 80)
	})
}
