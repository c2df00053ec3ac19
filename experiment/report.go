package experiment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/xuri/excelize/v2"
)

const (
	RUNS_SHEET    = "Runs"
	SUMMARY_SHEET = "Summary"
)

// WriteWorkbook saves the per-run results and the summary as an xlsx workbook.
func WriteWorkbook(path string, results []Result, s Summary) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	if err = f.SetSheetName("Sheet1", RUNS_SHEET); err != nil {
		return fmt.Errorf("workbook: %w", err)
	}
	if _, err = f.NewSheet(SUMMARY_SHEET); err != nil {
		return fmt.Errorf("workbook: %w", err)
	}

	header := []string{"Run", "Policy", "Spawn X", "Spawn Y", "Steps", "Episodes", "Elapsed (ms)", "Error"}
	if err = f.SetSheetRow(RUNS_SHEET, "A1", &header); err != nil {
		return fmt.Errorf("workbook header: %w", err)
	}
	for i, result := range results {
		errText := ""
		if result.Err != nil {
			errText = result.Err.Error()
		}
		row := []interface{}{
			result.Run,
			result.Policy,
			result.Spawn.X,
			result.Spawn.Y,
			result.Steps,
			len(result.Episodes),
			float64(result.Elapsed.Microseconds()) / 1000,
			errText,
		}
		if err = f.SetSheetRow(RUNS_SHEET, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("workbook row %d: %w", i, err)
		}
	}

	summary := [][]interface{}{
		{"Runs", s.Runs},
		{"Failed", s.Failed},
		{"Mean", s.Mean},
		{"StdDev", s.StdDev},
		{"Min", s.Min},
		{"Max", s.Max},
	}
	if s.Experiment != "" {
		summary = append(summary, []interface{}{"Experiment", s.Experiment})
	}
	for i := range summary {
		if err = f.SetSheetRow(SUMMARY_SHEET, fmt.Sprintf("A%d", i+1), &summary[i]); err != nil {
			return fmt.Errorf("workbook summary: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("workbook dir: %w", err)
		}
	}
	if err = f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// WriteChart renders an html page with the steps per run. When runs drove several episodes a
// second chart shows the mean steps per episode, i.e. the learning curve.
func WriteChart(w io.Writer, results []Result) error {
	page := components.NewPage()
	page.AddCharts(stepsChart(results))
	if curve := learningCurve(results); len(curve) > 1 {
		page.AddCharts(curveChart(curve))
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// SaveChart writes the chart page to path.
func SaveChart(path string, results []Result) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	return WriteChart(f, results)
}

func stepsChart(results []Result) *charts.Line {
	line := charts.NewLine()
	policy := ""
	if len(results) > 0 {
		policy = results[0].Policy
	}
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Steps to finish",
			Subtitle: policy,
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "run"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "steps"}),
	)

	runs := make([]string, 0, len(results))
	items := make([]opts.LineData, 0, len(results))
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		runs = append(runs, strconv.Itoa(result.Run))
		items = append(items, opts.LineData{Value: result.Steps})
	}
	line.SetXAxis(runs).AddSeries("steps", items)
	return line
}

func curveChart(curve []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Mean steps per episode"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "episode"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "steps"}),
	)

	episodes := make([]string, len(curve))
	items := make([]opts.LineData, len(curve))
	for i, v := range curve {
		episodes[i] = strconv.Itoa(i)
		items[i] = opts.LineData{Value: v}
	}
	line.SetXAxis(episodes).AddSeries("mean steps", items)
	return line
}

// learningCurve averages the steps of each episode index over the successful runs.
func learningCurve(results []Result) []float64 {
	var sums []float64
	var counts []int
	for _, result := range results {
		if result.Err != nil {
			continue
		}
		for i, steps := range result.Episodes {
			if i == len(sums) {
				sums = append(sums, 0)
				counts = append(counts, 0)
			}
			sums[i] += float64(steps)
			counts[i]++
		}
	}
	for i := range sums {
		sums[i] /= float64(counts[i])
	}
	return sums
}
