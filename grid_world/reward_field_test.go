package grid_world

import (
	"math"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

// bfsDistances computes 8-connected hop counts from the nearest finish, expanding only non-wall cells.
func bfsDistances(g *Grid) map[Point]int {
	dist := map[Point]int{}
	queue := g.Finishes()
	for _, p := range queue {
		dist[p] = 0
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if g.At(cur.X, cur.Y) == WALL {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				n := Point{cur.X + dx, cur.Y + dy}
				if !g.InBounds(n.X, n.Y) {
					continue
				}
				if _, ok := dist[n]; !ok {
					dist[n] = dist[cur] + 1
					queue = append(queue, n)
				}
			}
		}
	}
	return dist
}

func TestRewardField(t *testing.T) {
	Convey("When the reward field of the corner track is built", t, func() {
		g, err := Parse(strings.NewReader(cornerTrack))
		So(err, ShouldBeNil)
		rf := NewRewardField(g)

		So(rf.At(0, 0), ShouldEqual, 9.0)
		So(rf.At(1, 1), ShouldAlmostEqual, 9.0/1.1, 1e-9)
		So(rf.At(1, 0), ShouldAlmostEqual, 9.0/1.1, 1e-9)
		So(rf.At(2, 2), ShouldAlmostEqual, 9.0/1.1/1.1, 1e-9)

		width, height := rf.Dims()
		So(width, ShouldEqual, 3)
		So(height, ShouldEqual, 3)
	})

	Convey("When the reward field of the full track is built", t, func() {
		g, err := NewGrid(FullTrack)
		So(err, ShouldBeNil)
		rf := NewRewardField(g)
		dist := bfsDistances(g)
		anchor := float64(g.Width() * g.Height())

		Convey("Walls are exactly -1 and finishes are W*H", func() {
			g.Visit(func(x, y int, cell rune) {
				switch cell {
				case WALL:
					So(rf.At(x, y), ShouldEqual, -1.0)
				case FINISH:
					So(rf.At(x, y), ShouldEqual, anchor)
				}
			})
		})

		Convey("Rewards decay by hop distance from the nearest finish", func() {
			g.Visit(func(x, y int, cell rune) {
				if cell == WALL {
					return
				}
				d, ok := dist[Point{x, y}]
				So(ok, ShouldBeTrue)
				So(rf.At(x, y), ShouldAlmostEqual, anchor/math.Pow(REWARD_DECAY, float64(d)), 1e-6)
			})
		})

		Convey("Rewards never increase with distance", func() {
			g.Visit(func(x, y int, cell rune) {
				if cell == WALL {
					return
				}
				for dx := -1; dx <= 1; dx++ {
					for dy := -1; dy <= 1; dy++ {
						n := Point{x + dx, y + dy}
						if !g.InBounds(n.X, n.Y) || g.At(n.X, n.Y) == WALL {
							continue
						}
						if dist[n] > dist[Point{x, y}] {
							So(rf.At(n.X, n.Y), ShouldBeLessThanOrEqualTo, rf.At(x, y))
						}
					}
				}
			})
		})
	})

	Convey("When open cells are walled off from the finish", t, func() {
		g, err := NewGrid([]string{
			"F.#..",
			"S.#..",
		})
		So(err, ShouldBeNil)
		rf := NewRewardField(g)
		So(rf.At(3, 0), ShouldEqual, 0.0)
		So(rf.At(4, 1), ShouldEqual, 0.0)
		So(rf.At(2, 0), ShouldEqual, -1.0)
		So(rf.At(1, 1), ShouldAlmostEqual, 10.0/1.1, 1e-9)

		Convey("The exported matrix is a copy", func() {
			m := rf.Matrix()
			m.Set(0, 0, 42)
			So(rf.At(0, 0), ShouldEqual, 10.0)
		})
	})
}
