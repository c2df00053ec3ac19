package experiment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "racetrack/grid_world"
	"racetrack/reinforcement"

	"github.com/google/uuid"
	"github.com/smartystreets/goconvey/convey"
)

var corridor = []string{
	"#######",
	"#S...F#",
	"#######",
}

var corner = []string{
	"F..",
	"...",
	"..S",
}

func testConfig(algorithm string, runs, workers int) *reinforcement.TrainingConfig {
	return &reinforcement.TrainingConfig{
		HyperParams: []reinforcement.HyperParameter{
			{Key: "gamma", Val: 1},
			{Key: "slip", Val: 0},
		},
		Algorithm: map[string]string{"name": algorithm},
		Run: reinforcement.RunConfig{
			Runs:    runs,
			Workers: workers,
			Seed:    5,
		},
	}
}

func steps(results []Result) (s []int) {
	for _, result := range results {
		s = append(s, result.Steps)
	}
	return
}

func TestRunner(t *testing.T) {
	convey.Convey("When value runs drive the corridor", t, func() {
		g, err := NewGrid(corridor)
		convey.So(err, convey.ShouldBeNil)
		r, err := NewRunner(g, testConfig(reinforcement.VALUE_ITERATION, 5, 2))
		convey.So(err, convey.ShouldBeNil)

		var observed atomic.Int64
		r.WithObserver(func(_ context.Context, run int, d reinforcement.Driver, p reinforcement.Progress) {
			observed.Add(1)
		})

		results := r.Run(context.Background())
		convey.So(len(results), convey.ShouldEqual, 5)
		for i, result := range results {
			convey.So(result.Run, convey.ShouldEqual, i)
			convey.So(result.Err, convey.ShouldBeNil)
			convey.So(result.Steps, convey.ShouldEqual, 4)
			convey.So(result.Spawn, convey.ShouldResemble, Point{X: 1, Y: 1})
			convey.So(result.Policy, convey.ShouldEqual, reinforcement.VALUE_ITERATION)
		}
		convey.So(observed.Load(), convey.ShouldEqual, 20)
		convey.So(r.TotalSteps(), convey.ShouldEqual, 20.0)
	})

	convey.Convey("When q-learning runs are repeated with the same seed", t, func() {
		g, err := NewGrid(corner)
		convey.So(err, convey.ShouldBeNil)
		cfg := testConfig(reinforcement.Q_LEARNING, 6, 3)
		cfg.SetHyperParam("gamma", 0.8)
		cfg.Run.TotalReset = true

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		first, err := NewRunner(g, cfg)
		convey.So(err, convey.ShouldBeNil)
		second, err := NewRunner(g, cfg)
		convey.So(err, convey.ShouldBeNil)

		a := first.Run(ctx)
		b := second.Run(ctx)
		convey.So(len(a), convey.ShouldEqual, 6)
		convey.So(steps(a), convey.ShouldResemble, steps(b))
		for _, result := range a {
			convey.So(result.Err, convey.ShouldBeNil)
			convey.So(result.Steps, convey.ShouldBeGreaterThan, 0)
		}

		convey.Convey("A single worker produces the same results", func() {
			cfg.Run.Workers = 1
			serial, err := NewRunner(g, cfg)
			convey.So(err, convey.ShouldBeNil)
			convey.So(steps(serial.Run(ctx)), convey.ShouldResemble, steps(a))
		})
	})

	convey.Convey("When a learner drives several episodes per run", t, func() {
		g, err := NewGrid(corner)
		convey.So(err, convey.ShouldBeNil)
		cfg := testConfig(reinforcement.Q_LEARNING, 2, 2)
		cfg.SetHyperParam("gamma", 0.8)
		cfg.Run.Episodes = 4

		r, err := NewRunner(g, cfg)
		convey.So(err, convey.ShouldBeNil)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, result := range r.Run(ctx) {
			convey.So(result.Err, convey.ShouldBeNil)
			convey.So(len(result.Episodes), convey.ShouldEqual, 4)
			convey.So(result.Steps, convey.ShouldEqual, result.Episodes[3])
		}
	})

	convey.Convey("When the context is already done", t, func() {
		g, err := NewGrid(corner)
		convey.So(err, convey.ShouldBeNil)
		r, err := NewRunner(g, testConfig(reinforcement.Q_LEARNING, 3, 2))
		convey.So(err, convey.ShouldBeNil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		results := r.Run(ctx)
		convey.So(len(results), convey.ShouldEqual, 3)
		for _, result := range results {
			convey.So(errors.Is(result.Err, context.Canceled), convey.ShouldBeTrue)
		}
		convey.So(Summarize(results).Failed, convey.ShouldEqual, 3)
	})

	convey.Convey("When the configuration is invalid", t, func() {
		g, err := NewGrid(corner)
		convey.So(err, convey.ShouldBeNil)

		_, err = NewRunner(g, testConfig("sarsa", 1, 1))
		convey.So(errors.Is(err, ErrUnknownAlgorithm), convey.ShouldBeTrue)

		cfg := testConfig(reinforcement.Q_LEARNING, 1, 1)
		cfg.SetHyperParam("epsilon", 2)
		_, err = NewRunner(g, cfg)
		convey.So(errors.Is(err, reinforcement.ErrBadHyperParam), convey.ShouldBeTrue)
	})

	convey.Convey("When defaults are filled in", t, func() {
		g, err := NewGrid(corner)
		convey.So(err, convey.ShouldBeNil)
		r, err := NewRunner(g, &reinforcement.TrainingConfig{})
		convey.So(err, convey.ShouldBeNil)
		convey.So(r.Runs(), convey.ShouldEqual, 1)
		convey.So(r.Algorithm(), convey.ShouldEqual, reinforcement.Q_LEARNING)

		convey.Convey("Every runner has its own experiment id", func() {
			_, err := uuid.Parse(r.ID())
			convey.So(err, convey.ShouldBeNil)
			other, err := NewRunner(g, &reinforcement.TrainingConfig{})
			convey.So(err, convey.ShouldBeNil)
			convey.So(other.ID(), convey.ShouldNotEqual, r.ID())
		})
	})
}
