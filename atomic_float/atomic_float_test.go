package atomic_float

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// race starts every writer at once and waits for all of them.
func race(writers []func()) {
	start := make(chan struct{})
	wg := sync.WaitGroup{}
	wg.Add(len(writers))
	for _, w := range writers {
		go func(w func()) {
			defer wg.Done()
			<-start
			w()
		}(w)
	}
	// Wait for goroutines to begin
	time.Sleep(time.Millisecond * 10)
	close(start)
	wg.Wait()
}

func TestAtomicAdd(t *testing.T) {
	Convey("When atomicAdd is called", t, func() {
		numOps := 3000
		numWriters := 200

		Convey("When multiple writers retry single adds concurrently", func() {
			af := NewAtomicFloat64(0)
			adder := func() {
				for i := 0; i < numOps; i++ {
					for succeeded := false; !succeeded; _, succeeded = af.AtomicAdd(1.0) {
					}
				}
			}
			writers := make([]func(), numWriters)
			for i := range writers {
				writers[i] = adder
			}
			race(writers)
			So(af.AtomicRead(), ShouldEqual, float64(numOps*numWriters))
		})

		Convey("When multiple writers increment and decrement concurrently", func() {
			af := NewAtomicFloat64(0)
			var writers []func()
			for i := 0; i < numWriters; i++ {
				writers = append(writers,
					func() {
						for i := 0; i < numOps; i++ {
							af.Add(1.0)
						}
					},
					func() {
						for i := 0; i < numOps; i++ {
							af.Add(-1.0)
						}
					})
			}
			race(writers)
			So(af.AtomicRead(), ShouldEqual, 0.0)
		})
	})
}

func TestAtomicSet(t *testing.T) {
	Convey("When the value is set", t, func() {
		var af AtomicFloat64
		So(af.AtomicRead(), ShouldEqual, 0.0)
		af.AtomicSet(-2.5)
		So(af.AtomicRead(), ShouldEqual, -2.5)

		newVal, ok := af.AtomicAdd(0.5)
		So(ok, ShouldBeTrue)
		So(newVal, ShouldEqual, -2.0)
	})
}
