package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/devwatch/internal/domain"
)

// Debounce turns a bursty stream of change events into trailing-edge ticks.
// Every event re-arms a timer of length window; a tick is emitted once the
// timer expires without another event. With a zero window each event yields a
// tick immediately.
//
// The returned channel is closed when events is closed or ctx is done. A tick
// that has not fired yet at that point is dropped.
func Debounce(ctx context.Context, events <-chan domain.ChangeEvent, window time.Duration) <-chan domain.Tick {
	out := make(chan domain.Tick)

	go func() {
		defer close(out)

		var timer *time.Timer
		var timerCh <-chan time.Time
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		emit := func() bool {
			select {
			case out <- domain.Tick{}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return

			case _, ok := <-events:
				if !ok {
					return
				}
				if window <= 0 {
					if !emit() {
						return
					}
					continue
				}
				if timer == nil {
					timer = time.NewTimer(window)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(window)
				}
				timerCh = timer.C

			case <-timerCh:
				timerCh = nil
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}
