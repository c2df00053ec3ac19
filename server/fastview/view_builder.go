package fastview

import (
	"context"
	"errors"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// BATCH_WINDOW is how long ele-updates are coalesced before the merged channel emits them.
const BATCH_WINDOW = 20 * time.Millisecond

// ViewBuilder wires one data source to several views sharing a view-model:
// source -> convert -> broadcast -> views -> merged, batched ele-updates.
type ViewBuilder[DataModel any, ViewModel any] struct {
	source  <-chan DataModel
	convert func(DataModel) ViewModel
	views   []ViewBuilderFunc[ViewModel]
	done    <-chan struct{} // nil never closes
	window  time.Duration
}

// ViewBuilderFunc builds a view from an input view-model channel and a 'done' channel for cleanup.
type ViewBuilderFunc[ViewModel any] func(<-chan struct{}, <-chan ViewModel) ViewComponent

// NewViewBuilder returns a builder reading data models from source and converting
// each with convert.
func NewViewBuilder[DataModel any, ViewModel any](
	source <-chan DataModel,
	convert func(DataModel) ViewModel,
) *ViewBuilder[DataModel, ViewModel] {
	return &ViewBuilder[DataModel, ViewModel]{
		source:  source,
		convert: convert,
		window:  BATCH_WINDOW,
	}
}

// WithView appends a view; Build returns views in the order they were added.
func (vb *ViewBuilder[DataModel, ViewModel]) WithView(
	builderFn ViewBuilderFunc[ViewModel],
) *ViewBuilder[DataModel, ViewModel] {
	vb.views = append(vb.views, builderFn)
	return vb
}

// WithContext closes every downstream channel once ctx is done.
func (vb *ViewBuilder[DataModel, ViewModel]) WithContext(
	ctx context.Context,
) *ViewBuilder[DataModel, ViewModel] {
	vb.done = ctx.Done()
	return vb
}

// WithBatchWindow overrides BATCH_WINDOW.
func (vb *ViewBuilder[DataModel, ViewModel]) WithBatchWindow(
	window time.Duration,
) *ViewBuilder[DataModel, ViewModel] {
	vb.window = window
	return vb
}

var (
	// ErrNoViews is returned when Build() is called before any views were added.
	ErrNoViews error = errors.New("no views to build: WithView must be called")
	// ErrNoModel is returned when the builder has no source or conversion.
	ErrNoModel error = errors.New("no model specified: source and convert are required")
)

// Build starts the pipeline. It returns the views and the single channel merging all of
// their ele-updates.
func (vb *ViewBuilder[DataModel, ViewModel]) Build() (
	views []ViewComponent,
	updates <-chan []EleUpdate,
	err error,
) {
	if len(vb.views) == 0 {
		return nil, nil, ErrNoViews
	}
	if vb.source == nil || vb.convert == nil {
		return nil, nil, ErrNoModel
	}

	vmChan := channerics.Convert(vb.done, vb.source, vb.convert)
	vmChans := channerics.Broadcast(vb.done, vmChan, len(vb.views))
	inputs := make([]<-chan []EleUpdate, 0, len(vb.views))
	for i, build := range vb.views {
		view := build(vb.done, vmChans[i])
		views = append(views, view)
		inputs = append(inputs, view.Updates())
	}

	updates = Batch(vb.done, channerics.Merge(vb.done, inputs...), vb.window)
	return
}

// Batch coalesces updates arriving within window, keeping only the latest update per ele-id,
// so redundant updates for the same element are never sent. Pending updates are flushed every
// window and when the source closes.
func Batch(
	done <-chan struct{},
	source <-chan []EleUpdate,
	window time.Duration,
) <-chan []EleUpdate {
	output := make(chan []EleUpdate)

	go func() {
		defer close(output)

		pending := newCoalescer()
		flush := func() bool {
			if pending.empty() {
				return true
			}
			select {
			case output <- pending.take():
				return true
			case <-done:
				return false
			}
		}

		ticker := channerics.NewTicker(done, window)
		for {
			select {
			case <-done:
				return
			case updates, ok := <-source:
				if !ok {
					flush()
					return
				}
				pending.add(updates)
			case <-ticker:
				if !flush() {
					return
				}
			}
		}
	}()

	return output
}

// coalescer keeps the latest update per ele-id, in first-seen order.
type coalescer struct {
	latest map[string]EleUpdate
	order  []string
}

func newCoalescer() *coalescer {
	return &coalescer{latest: map[string]EleUpdate{}}
}

func (c *coalescer) add(updates []EleUpdate) {
	for _, update := range updates {
		if _, seen := c.latest[update.EleId]; !seen {
			c.order = append(c.order, update.EleId)
		}
		c.latest[update.EleId] = update
	}
}

func (c *coalescer) empty() bool {
	return len(c.order) == 0
}

// take returns the pending updates and resets the coalescer.
func (c *coalescer) take() (batch []EleUpdate) {
	batch = make([]EleUpdate, 0, len(c.order))
	for _, id := range c.order {
		batch = append(batch, c.latest[id])
	}
	c.latest = map[string]EleUpdate{}
	c.order = nil
	return
}
