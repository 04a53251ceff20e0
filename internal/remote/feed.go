package remote

import "sync"

// Feed is an unbounded snapshot queue backing a Subscription. Push never
// blocks; a goroutine drains the queue into the channel returned by
// Snapshots. Store implementations embed one Feed per subscription.
type Feed struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Snapshot
	closed  bool
	out     chan Snapshot
	done    chan struct{}
	onClose func()
	once    sync.Once
}

// NewFeed starts a feed. onClose, if non-nil, runs once when the feed is
// closed, after which no more snapshots are delivered.
func NewFeed(onClose func()) *Feed {
	f := &Feed{
		out:     make(chan Snapshot),
		done:    make(chan struct{}),
		onClose: onClose,
	}
	f.cond = sync.NewCond(&f.mu)
	go f.run()
	return f
}

// Push queues a snapshot. It is dropped if the feed is closed.
func (f *Feed) Push(s Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.queue = append(f.queue, s)
	f.cond.Signal()
}

// Snapshots implements Subscription.
func (f *Feed) Snapshots() <-chan Snapshot {
	return f.out
}

// Unsubscribe implements Subscription.
func (f *Feed) Unsubscribe() {
	f.Close()
}

// Close stops delivery and closes the snapshot channel once the drain
// goroutine exits. Queued snapshots that were not yet received are dropped.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.queue = nil
		f.cond.Signal()
		f.mu.Unlock()
		close(f.done)
		if f.onClose != nil {
			f.onClose()
		}
	})
}

// Done is closed when the feed is closed.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

func (f *Feed) run() {
	defer close(f.out)
	for {
		f.mu.Lock()
		for len(f.queue) == 0 && !f.closed {
			f.cond.Wait()
		}
		if f.closed {
			f.mu.Unlock()
			return
		}
		s := f.queue[0]
		f.queue = f.queue[1:]
		f.mu.Unlock()

		select {
		case f.out <- s:
		case <-f.done:
			return
		}
	}
}
