/*
Racetrack drives a car around a grid track with two classical RL approaches: online
q-learning, and value iteration followed by a greedy rollout. Runs are independent and
spread over goroutines; their step counts are summarized on the console and optionally
exported as a workbook and a chart. A live browser view of the first run's values and
policy can be served while training.
*/

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"racetrack/experiment"
	. "racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/server"
	"racetrack/vehicle"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

// SNAPSHOT_INTERVAL is the number of steps between live view snapshots.
const SNAPSHOT_INTERVAL = 50

// Hyperparameters settable from the command line. Viper decodes float flag defaults as
// strings, so these are applied to the decoded config rather than bound.
var floatParams = []struct {
	name  string
	usage string
}{
	{"epsilon", "q-learning exploration chance"},
	{"gamma", "discount factor"},
	{"threshold", "value iteration convergence threshold"},
	{"slip", "chance an acceleration is ignored"},
}

// Flags bound into the config's def subtree.
var boundFlags = map[string]string{
	"track":       "def.run.track",
	"runs":        "def.run.runs",
	"workers":     "def.run.workers",
	"seed":        "def.run.seed",
	"episodes":    "def.run.episodes",
	"total-reset": "def.run.totalreset",
	"deadline":    "def.trainingdeadline.duration",
	"xlsx":        "def.report.xlsx",
	"chart":       "def.report.chart",
}

func newRootCmd() *cobra.Command {
	vp := viper.New()
	root := &cobra.Command{
		Use:           "racetrack",
		Short:         "Train and evaluate racetrack driving policies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "yaml config with kind and def sections")
	flags.String("track", "", "track file; empty selects the built-in track")
	flags.Bool("debug", false, "use the small debug track when no track file is given")
	flags.Int("runs", 0, "number of independent runs")
	flags.Int("workers", 0, "number of worker goroutines, default NumCPU")
	flags.Int64("seed", 0, "base seed; run i uses seed+i")
	flags.Int("episodes", 0, "episodes per q-learning run")
	flags.Bool("total-reset", false, "return to the spawn after a collision")
	flags.String("deadline", "", "training deadline, e.g. 30s")
	flags.String("xlsx", "", "write the run report to this workbook")
	flags.String("chart", "", "write the steps chart to this html file")
	flags.Bool("verbose", false, "print the track after every step of the first run")
	flags.String("serve", "", "serve the live view on this address, e.g. localhost:8080")
	for _, param := range floatParams {
		flags.Float64(param.name, 0, param.usage)
	}
	for flag, key := range boundFlags {
		if err := vp.BindPFlag(key, flags.Lookup(flag)); err != nil {
			log.Fatal(err)
		}
	}

	root.AddCommand(
		newTrainCmd(vp, reinforcement.Q_LEARNING, "Learn online with q-learning"),
		newTrainCmd(vp, reinforcement.VALUE_ITERATION, "Solve with value iteration and roll out the greedy policy"),
		newRenderCmd(vp),
	)
	return root
}

func newTrainCmd(vp *viper.Viper, algorithm, short string) *cobra.Command {
	return &cobra.Command{
		Use:   algorithm,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTraining(cmd, vp, algorithm)
		},
	}
}

func newRenderCmd(vp *viper.Viper) *cobra.Command {
	var (
		pngPath  string
		cellSize int
		colors   bool
		values   bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the track, or draw it to a png",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, vp, reinforcement.VALUE_ITERATION)
			if err != nil {
				return err
			}
			g, err := loadTrack(cmd, cfg.Run.Track)
			if err != nil {
				return err
			}
			spawn := g.Starts()[0]

			if pngPath != "" {
				if err = DrawPNG(g, spawn, cellSize).SavePNG(pngPath); err != nil {
					return err
				}
				log.Printf("track written to %s\n", pngPath)
				return nil
			}

			out := cmd.OutOrStdout()
			renderer := NewRenderer(colors)
			if err = renderer.Render(out, g, spawn); err != nil || !values {
				return err
			}
			return renderValues(out, renderer, g, cfg)
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "draw the track to this png instead of the console")
	cmd.Flags().IntVar(&cellSize, "cell-size", 16, "png pixels per cell")
	cmd.Flags().BoolVar(&colors, "color", false, "colorize the console output")
	cmd.Flags().BoolVar(&values, "values", false, "also print the value iteration values and policy")
	return cmd
}

// renderValues solves the track and prints the value table and its greedy policy.
func renderValues(out io.Writer, renderer *Renderer, g *Grid, cfg *reinforcement.TrainingConfig) error {
	vcfg, err := cfg.ValueConfig()
	if err != nil {
		return err
	}
	table, sweeps, err := reinforcement.ValueIteration(g, vcfg.Threshold, vcfg.Gamma, vcfg.MaxIterations)
	if err != nil {
		log.Printf("warning: %v after %d sweeps\n", err, sweeps)
	}

	spawn := g.Starts()[0]
	car := vehicle.NewCar(spawn.X, spawn.Y, rand.New(rand.NewSource(cfg.Run.Seed)))
	snap := reinforcement.NewValueController(g, table, car, vcfg.TotalReset).Snapshot()

	fmt.Fprintln(out)
	if err = renderer.RenderValues(out, g, snap.Values); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return renderer.RenderPolicy(out, g, snap.Actions)
}

// loadConfig layers the config file, bound flags and hyperparameter flags, in increasing
// precedence, and selects the algorithm.
func loadConfig(
	cmd *cobra.Command,
	vp *viper.Viper,
	algorithm string,
) (cfg *reinforcement.TrainingConfig, err error) {
	flags := cmd.Flags()
	if path, _ := flags.GetString("config"); path != "" {
		vp.SetConfigFile(path)
		vp.SetConfigType("yaml")
		if err = vp.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	vp.Set("def.algorithm.name", algorithm)

	if cfg, err = reinforcement.FromViper(vp); err != nil {
		return nil, err
	}
	for _, param := range floatParams {
		if !flags.Changed(param.name) {
			continue
		}
		val, _ := flags.GetFloat64(param.name)
		cfg.SetHyperParam(param.name, val)
	}
	return cfg, nil
}

func loadTrack(cmd *cobra.Command, path string) (g *Grid, err error) {
	if path != "" {
		if g, err = Load(path); err != nil {
			return nil, err
		}
	} else {
		track := FullTrack
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			track = DebugTrack
		}
		if g, err = NewGrid(track); err != nil {
			return nil, err
		}
	}
	log.Printf("track loaded: %dx%d, %d starts, %d finishes\n",
		g.Width(), g.Height(), len(g.Starts()), len(g.Finishes()))
	return g, nil
}

func runTraining(cmd *cobra.Command, vp *viper.Viper, algorithm string) (err error) {
	var cfg *reinforcement.TrainingConfig
	if cfg, err = loadConfig(cmd, vp, algorithm); err != nil {
		return
	}
	var g *Grid
	if g, err = loadTrack(cmd, cfg.Run.Track); err != nil {
		return
	}
	var runner *experiment.Runner
	if runner, err = experiment.NewRunner(g, cfg); err != nil {
		return
	}

	appCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	trainingCtx, cancel, err := cfg.WithTrainingDeadline(appCtx)
	if err != nil {
		return
	}
	defer cancel()

	out := cmd.OutOrStdout()
	verbose, _ := cmd.Flags().GetBool("verbose")
	serveAddr, _ := cmd.Flags().GetString("serve")

	group, groupCtx := errgroup.WithContext(appCtx)
	var snapshots chan reinforcement.PolicySnapshot
	if serveAddr != "" {
		snapshots = make(chan reinforcement.PolicySnapshot, 1)
		var srv *server.Server
		if srv, err = server.NewServer(
			groupCtx,
			serveAddr,
			g,
			reinforcement.PolicySnapshot{Vehicle: Point{X: -1, Y: -1}},
			snapshots,
		); err != nil {
			return
		}
		group.Go(func() error {
			return srv.Serve(groupCtx)
		})
	}

	renderer := NewRenderer(false)
	runner.WithObserver(func(ctx context.Context, run int, d reinforcement.Driver, p reinforcement.Progress) {
		if run != 0 {
			return
		}
		if verbose {
			fmt.Fprintf(out, "step %d  action (%d,%d)  reward %.3f\n", p.Step, p.Action.Dvx, p.Action.Dvy, p.Reward)
			_ = renderer.Render(out, g, p.Position)
		}
		if snapshots != nil && (p.Step%SNAPSHOT_INTERVAL == 0 || p.Finished) {
			// Drop snapshots the view has not caught up with.
			select {
			case snapshots <- d.Snapshot():
			default:
			}
		}
	})

	log.Printf("experiment %s: %s, %d runs\n", runner.ID(), runner.Algorithm(), runner.Runs())
	results := runner.Run(trainingCtx)
	summary := experiment.Summarize(results)
	summary.Experiment = runner.ID()
	experiment.Print(out, results, summary)
	log.Printf("%d steps in total\n", int(runner.TotalSteps()))

	if cfg.Report.Xlsx != "" {
		if err = experiment.WriteWorkbook(cfg.Report.Xlsx, results, summary); err != nil {
			return
		}
		log.Printf("report written to %s\n", cfg.Report.Xlsx)
	}
	if cfg.Report.Chart != "" {
		if err = experiment.SaveChart(cfg.Report.Chart, results); err != nil {
			return
		}
		log.Printf("chart written to %s\n", cfg.Report.Chart)
	}

	if serveAddr != "" {
		log.Println("training finished, serving until interrupted")
	}
	return group.Wait()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
