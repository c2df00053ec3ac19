package experiment

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary aggregates the steps of the successful runs.
type Summary struct {
	Runs   int
	Failed int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	// Experiment identifies the invocation that produced the results, if set by the caller.
	Experiment string
}

func Summarize(results []Result) (s Summary) {
	s.Runs = len(results)
	steps := make([]float64, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			s.Failed++
			continue
		}
		steps = append(steps, float64(result.Steps))
	}
	if len(steps) == 0 {
		return
	}

	s.Mean, s.StdDev = stat.MeanStdDev(steps, nil)
	if len(steps) < 2 {
		s.StdDev = 0
	}
	s.Min = floats.Min(steps)
	s.Max = floats.Max(steps)
	return
}

// Print writes one line per run followed by the summary.
func Print(w io.Writer, results []Result, s Summary) {
	for _, result := range results {
		if result.Err != nil {
			fmt.Fprintf(w, "run %3d  spawn (%d,%d)  failed: %v\n", result.Run, result.Spawn.X, result.Spawn.Y, result.Err)
			continue
		}
		fmt.Fprintf(w, "run %3d  spawn (%d,%d)  steps %6d  %v\n",
			result.Run, result.Spawn.X, result.Spawn.Y, result.Steps, result.Elapsed)
	}
	fmt.Fprintf(w, "runs %d  failed %d  mean %.2f  stddev %.2f  min %.0f  max %.0f\n",
		s.Runs, s.Failed, s.Mean, s.StdDev, s.Min, s.Max)
}
