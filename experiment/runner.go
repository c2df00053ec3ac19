// Package experiment drives repeated, independent runs of a driving policy over a worker
// pool and reports on them.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"racetrack/atomic_float"
	. "racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/vehicle"

	"github.com/google/uuid"
	channerics "github.com/niceyeti/channerics/channels"
)

var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Result is the outcome of one run.
type Result struct {
	Run    int
	Policy string
	Spawn  Point
	// Steps taken in the last episode of the run.
	Steps int
	// Episodes holds the steps of every episode; value runs drive a single episode.
	Episodes []int
	Elapsed  time.Duration
	Err      error
}

// Observer is called synchronously from a run's goroutine after every step. The driver may be
// snapshotted from within the call. Observers shared by several workers must be safe for
// concurrent use.
type Observer func(ctx context.Context, run int, d reinforcement.Driver, p reinforcement.Progress)

// Runner executes independent runs of one policy on one track. Run i draws all of its
// randomness from a source seeded with seed+i, so results do not depend on scheduling.
type Runner struct {
	id        uuid.UUID
	grid      *Grid
	run       reinforcement.RunConfig
	algorithm string
	slip      float64
	qcfg      reinforcement.QLearningConfig
	vcfg      reinforcement.ValueConfig

	// Shared read-only by all runs.
	rewards *RewardField
	table   *reinforcement.ValueTable

	observer   Observer
	totalSteps *atomic_float.AtomicFloat64
}

// NewRunner validates the configuration and precomputes what the runs share: the reward
// field for q-learning, or the solved value table for value iteration. A value table that hit
// the sweep cap is logged and used anyway.
func NewRunner(g *Grid, cfg *reinforcement.TrainingConfig) (r *Runner, err error) {
	r = &Runner{
		id:         uuid.New(),
		grid:       g,
		run:        cfg.Run,
		algorithm:  cfg.AlgorithmName(),
		totalSteps: atomic_float.NewAtomicFloat64(0),
	}
	if r.run.Runs <= 0 {
		r.run.Runs = 1
	}
	if r.run.Episodes <= 0 {
		r.run.Episodes = 1
	}
	if r.run.Workers <= 0 {
		r.run.Workers = runtime.NumCPU()
	}
	if r.run.Workers > r.run.Runs {
		r.run.Workers = r.run.Runs
	}
	if r.slip, err = cfg.SlipChance(vehicle.SLIP_CHANCE); err != nil {
		return nil, err
	}

	switch r.algorithm {
	case reinforcement.Q_LEARNING:
		if r.qcfg, err = cfg.QLearningConfig(); err != nil {
			return nil, err
		}
		r.rewards = NewRewardField(g)
	case reinforcement.VALUE_ITERATION:
		if r.vcfg, err = cfg.ValueConfig(); err != nil {
			return nil, err
		}
		var sweeps int
		r.table, sweeps, err = reinforcement.ValueIteration(g, r.vcfg.Threshold, r.vcfg.Gamma, r.vcfg.MaxIterations)
		if errors.Is(err, reinforcement.ErrNotConverged) {
			log.Printf("warning: %v after %d sweeps, using the last table", err, sweeps)
			err = nil
		}
		if err != nil {
			return nil, err
		}
		log.Printf("value iteration finished after %d sweeps", sweeps)
	default:
		return nil, fmt.Errorf("%q: %w", r.algorithm, ErrUnknownAlgorithm)
	}
	return r, nil
}

// WithObserver sets the per-step hook.
func (r *Runner) WithObserver(observer Observer) *Runner {
	r.observer = observer
	return r
}

// ID identifies the runner's experiment in logs and reports.
func (r *Runner) ID() string        { return r.id.String() }
func (r *Runner) Algorithm() string { return r.algorithm }
func (r *Runner) Runs() int         { return r.run.Runs }

// TotalSteps is the live number of steps taken by all runs so far.
func (r *Runner) TotalSteps() float64 {
	return r.totalSteps.AtomicRead()
}

// Stream starts the workers and returns their merged results. Exactly one result per run is
// delivered before the channel closes, also when ctx ends early: runs cut short report the
// context error. The caller must drain the channel.
func (r *Runner) Stream(ctx context.Context) <-chan Result {
	// The pipeline itself is never cancelled; ctx only bounds the runs.
	done := make(chan struct{})

	jobs := make(chan int)
	go func() {
		defer close(jobs)
		for i := 0; i < r.run.Runs; i++ {
			jobs <- i
		}
	}()

	workers := make([]<-chan Result, 0, r.run.Workers)
	for i := 0; i < r.run.Workers; i++ {
		workers = append(workers, r.worker(ctx, jobs))
	}
	return channerics.Merge(done, workers...)
}

// Run executes all runs and returns their results ordered by run index.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, r.run.Runs)
	for result := range r.Stream(ctx) {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Run < results[j].Run
	})
	return results
}

func (r *Runner) worker(ctx context.Context, jobs <-chan int) <-chan Result {
	results := make(chan Result)
	go func() {
		defer close(results)
		for i := range jobs {
			results <- r.runOne(ctx, i)
		}
	}()
	return results
}

func (r *Runner) runOne(ctx context.Context, i int) (result Result) {
	result = Result{Run: i, Policy: r.algorithm}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return
	}

	rng := rand.New(rand.NewSource(r.run.Seed + int64(i)))
	result.Spawn = r.grid.RandomStart(rng)
	car := vehicle.NewCar(result.Spawn.X, result.Spawn.Y, rng)
	car.SlipChance = r.slip

	var driver reinforcement.Driver
	episodes := 1
	var learner *reinforcement.QLearner
	switch r.algorithm {
	case reinforcement.Q_LEARNING:
		learner = reinforcement.NewQLearner(r.grid, r.rewards, car, rng, r.qcfg)
		driver = learner
		episodes = r.run.Episodes
	default:
		driver = reinforcement.NewValueController(r.grid, r.table, car, r.vcfg.TotalReset)
	}

	progressFn := func(ctx context.Context, p reinforcement.Progress) {
		r.totalSteps.Add(1)
		if r.observer != nil {
			r.observer(ctx, i, driver, p)
		}
	}

	start := time.Now()
	defer func() {
		result.Elapsed = time.Since(start)
	}()
	for ep := 0; ep < episodes; ep++ {
		if ep > 0 {
			learner.Restart()
		}
		steps, err := driver.Run(ctx, progressFn)
		result.Steps = steps
		result.Episodes = append(result.Episodes, steps)
		if err != nil {
			result.Err = fmt.Errorf("run %d episode %d: %w", i, ep, err)
			return
		}
	}
	return
}
