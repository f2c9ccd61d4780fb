package services

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Reaper removes staged files and directories after a delay, bounding how
// long any local byte range can live even if a later pipeline stage crashes
// before its explicit cleanup. Deletion is idempotent: a path that is already
// gone is not an error.
type Reaper struct {
	mu     sync.Mutex
	quit   chan struct{}
	drain  bool
	closed bool
	wg     sync.WaitGroup
}

func NewReaper() *Reaper {
	return &Reaper{quit: make(chan struct{})}
}

// Schedule removes path (recursively, for directories) after delay.
func (r *Reaper) Schedule(path string, delay time.Duration) {
	r.ScheduleFunc(delay, func() {
		if err := os.RemoveAll(path); err != nil {
			log.Error().Str("path", path).Err(err).Msg("scheduled delete failed")
			return
		}
		log.Debug().Str("path", path).Msg("reaped")
	})
}

// ScheduleFunc runs fn after delay. During a draining shutdown pending work
// runs immediately; otherwise shutdown abandons it.
func (r *Reaper) ScheduleFunc(delay time.Duration, fn func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if r.drain {
			fn()
		}
		return
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-r.quit:
			r.mu.Lock()
			drain := r.drain
			r.mu.Unlock()
			if !drain {
				return
			}
		}

		fn()
	}()
}

// Shutdown stops the reaper. With drain set, every pending deletion fires
// immediately and Shutdown returns once all have run; without it, pending
// deletions are abandoned, which is safe because abandoned paths are
// re-created under fresh names on the next start.
func (r *Reaper) Shutdown(drain bool) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.wg.Wait()
		return
	}
	r.closed = true
	r.drain = drain
	close(r.quit)
	r.mu.Unlock()

	r.wg.Wait()
}
