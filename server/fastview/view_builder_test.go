package fastview

import (
	"context"
	"html/template"
	"strconv"
	"testing"
	"time"

	channerics "github.com/niceyeti/channerics/channels"

	. "github.com/smartystreets/goconvey/convey"
)

// textView sets the text of one element to the latest view-model.
type textView struct {
	id      string
	updates <-chan []EleUpdate
}

func newTextView(id string) ViewBuilderFunc[string] {
	return func(done <-chan struct{}, vm <-chan string) ViewComponent {
		tv := &textView{id: id}
		tv.updates = channerics.Convert(done, vm, func(text string) []EleUpdate {
			return []EleUpdate{{EleId: tv.id, Ops: []Op{{Key: "textContent", Value: text}}}}
		})
		return tv
	}
}

func (tv *textView) Updates() <-chan []EleUpdate { return tv.updates }

func (tv *textView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + tv.id + `" }}<p id="` + tv.id + `">{{ . }}</p>{{ end }}`)
	return tv.id, err
}

func receive(updates <-chan []EleUpdate) (batch []EleUpdate, ok bool) {
	select {
	case batch, ok = <-updates:
	case <-time.After(5 * time.Second):
	}
	return
}

func TestViewBuilder(t *testing.T) {
	Convey("When the builder is incomplete", t, func() {
		source := make(chan int)

		Convey("Build without views fails", func() {
			_, _, err := NewViewBuilder(source, strconv.Itoa).Build()
			So(err, ShouldEqual, ErrNoViews)
		})

		Convey("Build without a source fails", func() {
			_, _, err := NewViewBuilder[int, string](nil, strconv.Itoa).
				WithView(newTextView("a")).
				Build()
			So(err, ShouldEqual, ErrNoModel)
		})
	})

	Convey("When a data model is published to two views", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		source := make(chan int)
		views, updates, err := NewViewBuilder(source, strconv.Itoa).
			WithContext(ctx).
			WithBatchWindow(5 * time.Millisecond).
			WithView(newTextView("first")).
			WithView(newTextView("second")).
			Build()
		So(err, ShouldBeNil)
		So(len(views), ShouldEqual, 2)

		source <- 42

		Convey("Both views' updates arrive on the merged channel", func() {
			seen := map[string]string{}
			for len(seen) < 2 {
				batch, ok := receive(updates)
				So(ok, ShouldBeTrue)
				for _, update := range batch {
					seen[update.EleId] = update.Ops[0].Value
				}
			}
			So(seen, ShouldResemble, map[string]string{"first": "42", "second": "42"})
		})

		Convey("The views parse into a parent template", func() {
			parent := template.New("parent")
			name, err := views[0].Parse(parent)
			So(err, ShouldBeNil)
			So(name, ShouldEqual, "first")
			So(parent.Lookup("first"), ShouldNotBeNil)
		})
	})
}

func TestBatch(t *testing.T) {
	Convey("When updates for the same element arrive within a window", t, func() {
		source := make(chan []EleUpdate)
		batches := Batch(nil, source, time.Hour)

		go func() {
			defer close(source)
			source <- []EleUpdate{{EleId: "a", Ops: []Op{{Key: "x", Value: "1"}}}}
			source <- []EleUpdate{{EleId: "b", Ops: []Op{{Key: "x", Value: "2"}}}}
			source <- []EleUpdate{{EleId: "a", Ops: []Op{{Key: "x", Value: "3"}}}}
		}()

		Convey("Only the latest update per element is kept, in first-seen order", func() {
			batch, ok := receive(batches)
			So(ok, ShouldBeTrue)
			So(batch, ShouldResemble, []EleUpdate{
				{EleId: "a", Ops: []Op{{Key: "x", Value: "3"}}},
				{EleId: "b", Ops: []Op{{Key: "x", Value: "2"}}},
			})

			_, ok = receive(batches)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("When the source goes quiet", t, func() {
		done := make(chan struct{})
		defer close(done)
		source := make(chan []EleUpdate)
		batches := Batch(done, source, 10*time.Millisecond)

		source <- []EleUpdate{{EleId: "a"}}

		Convey("The pending batch is flushed on the next tick", func() {
			batch, ok := receive(batches)
			So(ok, ShouldBeTrue)
			So(batch, ShouldResemble, []EleUpdate{{EleId: "a"}})
		})
	})
}
