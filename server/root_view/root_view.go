package root_view

import (
	"context"
	"fmt"
	"html/template"

	. "racetrack/grid_world"
	"racetrack/reinforcement"
	"racetrack/server/cell_views"
	"racetrack/server/fastview"
)

// RootView is the main page's index.html, the container for all the view components and
// the wiring for their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView builds the page's views for snapshots of policies on g.
func NewRootView(
	ctx context.Context,
	g *Grid,
	snapshots <-chan reinforcement.PolicySnapshot,
) (*RootView, error) {
	views, updates, err := fastview.NewViewBuilder[reinforcement.PolicySnapshot, [][]cell_views.Cell](
		snapshots,
		cell_views.NewConverter(g),
	).
		WithContext(ctx).
		WithView(func(
			done <-chan struct{},
			cells <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValuesGrid(done, cells)
		}).
		WithView(func(
			done <-chan struct{},
			cells <-chan [][]cell_views.Cell) fastview.ViewComponent {
			return cell_views.NewValueSurface(done, cells, g.Width(), g.Height())
		}).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build views: %w", err)
	}

	return &RootView{
		views:   views,
		updates: updates,
	}, nil
}

// Updates returns the batched ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// It also sets up the func-map the child components depend on; views may add their own.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	rt := parent.Funcs(
		template.FuncMap{
			"add":  func(i, j int) int { return i + j },
			"sub":  func(i, j int) int { return i - j },
			"mult": func(i, j int) int { return i * j },
			"div":  func(i, j int) int { return i / j },
			"max": func(i, j int) int {
				if i > j {
					return i
				}
				return j
			},
		})

	var bodySpec string
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(rt)
		if parseErr != nil {
			err = fmt.Errorf("parse view: %w", parseErr)
			return
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The main template bootstraps the rest: the client websocket and the aggregated views.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<script>
				const ws = new WebSocket("ws://" + location.host + "/ws");
				ws.onopen = function (event) {
					console.log("Web socket opened")
				};

				ws.onerror = function (event) {
					console.log('WebSocket error: ', event);
				};

				// The server pushes ele-updates; find these eles and update them.
				ws.onmessage = function (event) {
					const items = JSON.parse(event.data)
					for (const update of items) {
						const ele = document.getElementById(update.EleId)
						if (ele === null) {
							continue
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value)
							}
						}
					}
				}
			</script>
		</head>
		<body>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = rt.Parse(indexTemplate)
	return
}
