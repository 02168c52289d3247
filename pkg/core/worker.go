package core

import (
	"sync"
	"time"
)

// Worker runs f after d, then again after every duration f returns.
// A zero or negative duration ends the loop.
type Worker struct {
	timer *time.Timer
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewWorker(d time.Duration, f func() time.Duration) *Worker {
	w := &Worker{
		timer: time.NewTimer(d),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.timer.C:
				// stop wins over a timer that fired at the same moment
				select {
				case <-w.stop:
					return
				default:
				}
				if d = f(); d > 0 {
					w.timer.Reset(d)
					continue
				}
			case <-w.stop:
				w.timer.Stop()
			}
			return
		}
	}()

	return w
}

// Do - instant timer run
func (w *Worker) Do() {
	if w == nil {
		return
	}
	w.timer.Reset(0)
}

// Stop ends the loop and waits for a running f to return.
func (w *Worker) Stop() {
	if w == nil {
		return
	}
	w.once.Do(func() {
		close(w.stop)
	})
	<-w.done
}

// Done is closed when the loop has ended.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
