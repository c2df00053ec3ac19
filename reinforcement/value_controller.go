package reinforcement

import (
	"context"
	"math"

	. "racetrack/grid_world"
	"racetrack/vehicle"
)

// ValueController drives a vehicle greedily over a solved value table: at every step it
// accelerates toward the most valuable cell of the 3x3 neighbourhood around the car.
type ValueController struct {
	grid       *Grid
	table      *ValueTable
	car        *vehicle.Car
	totalReset bool

	next         Action
	episodeStart int
}

// NewValueController selects the first action at the car's current position. The table is
// only read, so one table may back any number of controllers.
func NewValueController(g *Grid, table *ValueTable, car *vehicle.Car, totalReset bool) *ValueController {
	vc := &ValueController{
		grid:         g,
		table:        table,
		car:          car,
		totalReset:   totalReset,
		episodeStart: car.Steps(),
	}
	vc.next = vc.selectAction(position(car))
	return vc
}

// Step applies the chosen action, recovers from collisions and picks the next action.
func (vc *ValueController) Step() (p Progress) {
	prev := position(vc.car)
	action := vc.next

	vc.car.ApplyAcceleration(action.Dvx, action.Dvy)
	landing := position(vc.car)
	p = Progress{
		Step:     vc.car.Steps() - vc.episodeStart,
		Landing:  landing,
		Position: landing,
		Action:   action,
	}

	switch classify(vc.grid, landing) {
	case finished:
		p.Finished = true
		return
	case recovering:
		p.Collided = true
		p.Position = recoverCar(vc.grid, vc.car, vc.totalReset, landing, prev)
	}
	p.Reward = vc.table.At(p.Position.X, p.Position.Y)

	vc.next = vc.selectAction(p.Position)
	return
}

// Run steps the vehicle until it reaches a finish cell or ctx is done.
func (vc *ValueController) Run(ctx context.Context, progressFn ProgressFunc) (steps int, err error) {
	for {
		select {
		case <-ctx.Done():
			return vc.car.Steps() - vc.episodeStart, ctx.Err()
		default:
		}

		p := vc.Step()
		if progressFn != nil {
			progressFn(ctx, p)
		}
		if p.Finished {
			return p.Step, nil
		}
	}
}

// Snapshot reports the table values and the controller's choice per cell.
func (vc *ValueController) Snapshot() PolicySnapshot {
	actions := newTable[Action](vc.grid.Width(), vc.grid.Height())
	for x := range actions {
		for y := range actions[x] {
			actions[x][y] = vc.selectAction(Point{X: x, Y: y})
		}
	}
	return PolicySnapshot{
		Values:  vc.table.Values(),
		Actions: actions,
		Vehicle: position(vc.car),
		Step:    vc.car.Steps() - vc.episodeStart,
	}
}

// selectAction picks the acceleration toward the highest valued in-bounds cell around at.
// Only a strictly greater value replaces the incumbent, so ties go to the first action.
func (vc *ValueController) selectAction(at Point) Action {
	var best Action
	maxValue := math.Inf(-1)
	for _, action := range Actions() {
		x, y := at.X+action.Dvx, at.Y+action.Dvy
		if !vc.grid.InBounds(x, y) {
			continue
		}
		if v := vc.table.At(x, y); v > maxValue {
			maxValue, best = v, action
		}
	}
	return best
}
