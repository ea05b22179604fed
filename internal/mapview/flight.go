package mapview

import (
	"context"
	"sync"
)

// Flight is a pending camera animation. It resolves when the engine reports
// the move end for its id, or when a later flight interrupts it.
type Flight struct {
	ID     string
	Target CameraTarget

	once        sync.Once
	done        chan struct{}
	interrupted bool
}

func newFlight(id string, t CameraTarget) *Flight {
	return &Flight{ID: id, Target: t, done: make(chan struct{})}
}

// Done is closed once the flight has resolved.
func (f *Flight) Done() <-chan struct{} { return f.done }

// Wait blocks until the flight resolves or ctx ends.
func (f *Flight) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupted reports whether a later flight replaced this one. Only
// meaningful after Done is closed.
func (f *Flight) Interrupted() bool {
	<-f.done
	return f.interrupted
}

func (f *Flight) resolve(interrupted bool) bool {
	resolved := false
	f.once.Do(func() {
		f.interrupted = interrupted
		close(f.done)
		resolved = true
	})
	return resolved
}
