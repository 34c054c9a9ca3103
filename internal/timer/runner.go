package timer

import (
	"sync"
	"time"
)

// TickInterval is the tick granularity of the session clock.
const TickInterval = time.Second

// Runner calls fn once per interval on its own goroutine until stopped.
type Runner struct {
	interval time.Duration
	fn       func(time.Time)

	once sync.Once
	stop chan struct{}
	done chan struct{}
}

// NewRunner creates a Runner. It does nothing until Start.
func NewRunner(interval time.Duration, fn func(time.Time)) *Runner {
	return &Runner{
		interval: interval,
		fn:       fn,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticking goroutine.
func (r *Runner) Start() {
	go r.loop()
}

func (r *Runner) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case now := <-ticker.C:
			r.fn(now)
		}
	}
}

// Stop ends the loop. It is idempotent and may be called from inside fn;
// it does not wait for the goroutine to exit.
func (r *Runner) Stop() {
	r.once.Do(func() { close(r.stop) })
}

// Done is closed once the goroutine has exited.
func (r *Runner) Done() <-chan struct{} { return r.done }
