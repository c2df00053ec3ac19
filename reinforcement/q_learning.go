package reinforcement

import (
	"context"
	"math"
	"math/rand"

	. "racetrack/grid_world"
	"racetrack/vehicle"
)

// INITIAL_VISITS seeds every action's visit count, so the learning rate starts at 1.
const INITIAL_VISITS = 100

// QLearner learns action values for one vehicle on one track. The q-table is indexed
// [x][y][dvx+1][dvy+1]. Visit counts are kept per action type only, shared by all cells,
// so the learning rate decays with how often an acceleration has been used anywhere.
type QLearner struct {
	grid    *Grid
	rewards *RewardField
	car     *vehicle.Car
	rng     *rand.Rand
	cfg     QLearningConfig

	qTable       [][][NUM_ACCELERATIONS][NUM_ACCELERATIONS]float64
	visits       [NUM_ACCELERATIONS][NUM_ACCELERATIONS]int
	next         Action
	episodeStart int
}

// NewQLearner builds a learner with a zeroed q-table and selects its first action at the
// car's current position.
func NewQLearner(
	g *Grid,
	rewards *RewardField,
	car *vehicle.Car,
	rng *rand.Rand,
	cfg QLearningConfig,
) *QLearner {
	ql := &QLearner{
		grid:    g,
		rewards: rewards,
		car:     car,
		rng:     rng,
		cfg:     cfg,
		qTable:  make([][][NUM_ACCELERATIONS][NUM_ACCELERATIONS]float64, g.Width()),
	}
	for x := range ql.qTable {
		ql.qTable[x] = make([][NUM_ACCELERATIONS][NUM_ACCELERATIONS]float64, g.Height())
	}
	for i := range ql.visits {
		for j := range ql.visits[i] {
			ql.visits[i][j] = INITIAL_VISITS
		}
	}
	ql.episodeStart = car.Steps()
	ql.next = ql.selectAction(position(car))
	return ql
}

// LearningRate is 100 over the number of times the action has been applied, counting the
// initial 100 visits.
func (ql *QLearner) LearningRate(action Action) float64 {
	i, j := action.Index()
	return float64(INITIAL_VISITS) / float64(ql.visits[i][j])
}

func (ql *QLearner) recordVisit(action Action) {
	i, j := action.Index()
	ql.visits[i][j]++
}

// Q returns the action value of the action at x/y.
func (ql *QLearner) Q(x, y int, action Action) float64 {
	i, j := action.Index()
	return ql.qTable[x][y][i][j]
}

// NextAction is the action the learner will apply on its next step.
func (ql *QLearner) NextAction() Action {
	return ql.next
}

// Step applies the selected action and, unless the vehicle finished, selects the next action
// and updates the value of the action just taken.
func (ql *QLearner) Step() (p Progress) {
	prev := position(ql.car)
	action := ql.next

	ql.car.ApplyAcceleration(action.Dvx, action.Dvy)
	ql.recordVisit(action)

	landing := position(ql.car)
	p = Progress{
		Step:     ql.car.Steps() - ql.episodeStart,
		Landing:  landing,
		Position: landing,
		Action:   action,
		Reward:   ql.reward(landing),
	}

	switch classify(ql.grid, landing) {
	case finished:
		p.Finished = true
		return
	case recovering:
		p.Collided = true
		p.Position = recoverCar(ql.grid, ql.car, ql.cfg.TotalReset, landing, prev)
	}

	alpha := ql.LearningRate(action)
	ql.next = ql.selectAction(p.Position)

	i, j := action.Index()
	ni, nj := ql.next.Index()
	q := &ql.qTable[prev.X][prev.Y][i][j]
	*q = sarsaUpdate(*q, alpha, p.Reward, ql.cfg.Gamma, ql.qTable[p.Position.X][p.Position.Y][ni][nj])
	return
}

// Run steps the vehicle until it reaches a finish cell. There is no step limit; only ctx
// bounds the episode.
func (ql *QLearner) Run(ctx context.Context, progressFn ProgressFunc) (steps int, err error) {
	for {
		select {
		case <-ctx.Done():
			return ql.car.Steps() - ql.episodeStart, ctx.Err()
		default:
		}

		p := ql.Step()
		if progressFn != nil {
			progressFn(ctx, p)
		}
		if p.Finished {
			return p.Step, nil
		}
	}
}

// Restart begins another episode from the spawn, keeping everything learned so far.
func (ql *QLearner) Restart() {
	ql.car.Reset()
	ql.episodeStart = ql.car.Steps()
	ql.next = ql.selectAction(position(ql.car))
}

// StateValues returns the max action value per cell, indexed [x][y].
func (ql *QLearner) StateValues() [][]float64 {
	values := newTable[float64](ql.grid.Width(), ql.grid.Height())
	for x := range values {
		for y := range values[x] {
			_, values[x][y] = ql.greedy(Point{X: x, Y: y})
		}
	}
	return values
}

// GreedyActions returns the first max-valued action per cell, indexed [x][y].
func (ql *QLearner) GreedyActions() [][]Action {
	actions := newTable[Action](ql.grid.Width(), ql.grid.Height())
	for x := range actions {
		for y := range actions[x] {
			actions[x][y], _ = ql.greedy(Point{X: x, Y: y})
		}
	}
	return actions
}

func (ql *QLearner) Snapshot() PolicySnapshot {
	return PolicySnapshot{
		Values:  ql.StateValues(),
		Actions: ql.GreedyActions(),
		Vehicle: position(ql.car),
		Step:    ql.car.Steps() - ql.episodeStart,
	}
}

// Off-grid landings score like walls.
func (ql *QLearner) reward(at Point) float64 {
	if !ql.grid.InBounds(at.X, at.Y) {
		return WALL_REWARD
	}
	return ql.rewards.At(at.X, at.Y)
}

// selectAction is epsilon-greedy over the q-values at the given cell. Exact ties are decided
// by a coin flip between the incumbent and the newly equal action, which favors actions later
// in enumeration order.
func (ql *QLearner) selectAction(at Point) Action {
	if ql.rng.Float64() < ql.cfg.ExplorationChance {
		return Action{
			Dvx: ql.rng.Intn(NUM_ACCELERATIONS) + MIN_ACCELERATION,
			Dvy: ql.rng.Intn(NUM_ACCELERATIONS) + MIN_ACCELERATION,
		}
	}

	var best Action
	maxQ := math.Inf(-1)
	for _, action := range Actions() {
		q := ql.Q(at.X, at.Y, action)
		if q > maxQ {
			maxQ, best = q, action
		} else if q == maxQ && ql.rng.Intn(2) == 1 {
			best = action
		}
	}
	return best
}

func (ql *QLearner) greedy(at Point) (best Action, maxQ float64) {
	maxQ = math.Inf(-1)
	for _, action := range Actions() {
		if q := ql.Q(at.X, at.Y, action); q > maxQ {
			maxQ, best = q, action
		}
	}
	return
}

// sarsaUpdate moves q toward the bootstrapped target reward + gamma*next by alpha.
func sarsaUpdate(q, alpha, reward, gamma, next float64) float64 {
	return (1-alpha)*q + alpha*(reward+gamma*next)
}
