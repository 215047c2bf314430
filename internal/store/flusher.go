package store

import (
	"context"
	"sync"

	"pkt.systems/pslog"
)

// Flusher owns all writes of one collection to the store. Components
// mutate their in-memory state and Kick; a single goroutine persists the
// latest snapshot, coalescing bursts into one write. Memory stays
// authoritative; nothing reads the key back after boot.
type Flusher struct {
	s        Store
	key      string
	snapshot func() any
	log      pslog.Logger

	kick    chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewFlusher starts the flush goroutine. snapshot must return a
// self-contained copy of the collection, safe to marshal concurrently
// with further mutations.
func NewFlusher(s Store, key string, snapshot func() any, logger pslog.Logger) *Flusher {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	f := &Flusher{
		s:        s,
		key:      key,
		snapshot: snapshot,
		log:      logger,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go f.run()
	return f
}

// Kick marks the collection dirty. It never blocks; kicks landing while
// a write is in flight coalesce into one follow-up write.
func (f *Flusher) Kick() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Sync writes the current snapshot immediately, bypassing the kick
// queue. Used where durability must precede a side effect.
func (f *Flusher) Sync() {
	f.write()
}

// Close stops the flusher, writing one final time if a kick is pending.
// It returns after the final write has completed.
func (f *Flusher) Close() {
	f.once.Do(func() { close(f.done) })
	<-f.stopped
}

func (f *Flusher) run() {
	defer close(f.stopped)
	for {
		select {
		case <-f.done:
			// Final drain so a mutation right before shutdown is not lost.
			select {
			case <-f.kick:
				f.write()
			default:
			}
			return
		case <-f.kick:
			f.write()
		}
	}
}

func (f *Flusher) write() {
	if err := SaveJSON(f.s, f.key, f.snapshot()); err != nil {
		f.log.Warn("state flush failed", "key", f.key, "err", err)
	}
}
