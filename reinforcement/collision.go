package reinforcement

import (
	. "racetrack/grid_world"
	"racetrack/vehicle"
)

// outcome classifies where a step left the vehicle.
type outcome int

const (
	running outcome = iota
	recovering
	finished
)

func classify(g *Grid, at Point) outcome {
	if !g.InBounds(at.X, at.Y) {
		return recovering
	}
	switch g.At(at.X, at.Y) {
	case WALL:
		return recovering
	case FINISH:
		return finished
	}
	return running
}

// NearestOpenSpace returns the OPEN cell closest to the collision point by manhattan distance.
// Equidistant candidates are decided by their distance to prev, where a strictly closer
// candidate wins and otherwise the first one in row-major order is kept.
// The bool result is false if the track has no open cells.
func NearestOpenSpace(g *Grid, collision, prev Point) (nearest Point, ok bool) {
	best := -1
	for _, cell := range g.OpenCells() {
		d := manhattan(cell, collision)
		switch {
		case best < 0 || d < best:
			best, nearest = d, cell
		case d == best && manhattan(cell, prev) < manhattan(nearest, prev):
			nearest = cell
		}
	}
	return nearest, best >= 0
}

// recoverCar relocates a crashed car and returns its new position. With a total reset,
// or on a track without open cells, the car returns to its spawn.
func recoverCar(g *Grid, car *vehicle.Car, totalReset bool, collision, prev Point) Point {
	if !totalReset {
		if open, ok := NearestOpenSpace(g, collision, prev); ok {
			car.ResetTo(open.X, open.Y)
			return open
		}
	}
	car.Reset()
	x, y := car.Spawn()
	return Point{X: x, Y: y}
}

func position(car *vehicle.Car) Point {
	x, y := car.Position()
	return Point{X: x, Y: y}
}

func manhattan(a, b Point) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}
