// Package reinforcement implements the two driving policies for the race track: a tabular
// q-learner and a value iteration planner with its greedy rollout controller. Both share the
// vehicle dynamics and the collision layer; neither knows about goroutines, a run is
// synchronous and draws all randomness from one injected source.
package reinforcement

import (
	"context"

	. "racetrack/grid_world"
)

// Progress describes a single time step of a driving policy.
type Progress struct {
	// Step is the number of steps taken in the current episode, including this one.
	Step int
	// Landing is where the dynamics put the vehicle, possibly off the grid.
	Landing Point
	// Position is where the vehicle continues from after any collision recovery.
	Position Point
	Action   Action
	Reward   float64
	Collided bool
	Finished bool
}

// ProgressFunc is a callback by which the policies lend progress details while training.
// ProgressFunc is synchronous/blocking and should be defined to complete quickly.
type ProgressFunc func(context.Context, Progress)

// PolicySnapshot is a copy of a policy's per-cell values and greedy actions, indexed [x][y],
// plus the vehicle position. Snapshots are safe to hand to other goroutines.
type PolicySnapshot struct {
	Values  [][]float64
	Actions [][]Action
	Vehicle Point
	Step    int
}

// Driver drives one vehicle to the finish.
type Driver interface {
	// Run steps the vehicle until a finish cell is reached or ctx is done, and returns the
	// number of steps taken.
	Run(ctx context.Context, progressFn ProgressFunc) (steps int, err error)
	Snapshot() PolicySnapshot
}

func newTable[T any](width, height int) [][]T {
	table := make([][]T, width)
	for x := range table {
		table[x] = make([]T, height)
	}
	return table
}
