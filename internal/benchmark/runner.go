package benchmark

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/michaelomichael/tracka/internal/auth"
	"github.com/michaelomichael/tracka/internal/backend"
	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/store"
	"github.com/michaelomichael/tracka/internal/types"
)

// convergePoll is how often Run checks whether every client has caught up.
const convergePoll = 10 * time.Millisecond

// client is one simulated session.
type client struct {
	index   int
	auth    *auth.Manual
	backend *backend.Backend
	cancel  func()

	mu   sync.Mutex
	seen map[string]time.Time
}

func (c *client) observe(ev store.Event) {
	if ev.ID == "" || ev.Removed {
		return
	}
	now := time.Now()
	c.mu.Lock()
	if _, ok := c.seen[ev.ID]; !ok {
		c.seen[ev.ID] = now
	}
	c.mu.Unlock()
}

func (c *client) seenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *client) seenAt(id string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.seen[id]
	return t, ok
}

// write is one AddTask issued by a client.
type write struct {
	client int
	start  time.Time
}

// Run executes a benchmark against rs. Every client logs in as the same
// freshly generated user, so existing data in rs is left alone. rs is not
// closed.
func Run(ctx context.Context, cfg Config, rs remote.Store, logger *log.Logger) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	memBefore := memoryStats()
	userID := "bench-" + uuid.NewString()

	clients := make([]*client, cfg.Clients)
	defer func() {
		for _, c := range clients {
			if c != nil {
				c.cancel()
				_ = c.backend.Close()
			}
		}
	}()

	// The first client provisions the default lists; the rest load them.
	startupStart := time.Now()
	first, err := startClient(ctx, 0, rs, userID, logger)
	if err != nil {
		return nil, err
	}
	clients[0] = first
	startup := time.Since(startupStart)

	// Sessions must outlive the group, so they run on ctx.
	var g errgroup.Group
	for i := 1; i < cfg.Clients; i++ {
		g.Go(func() error {
			c, err := startClient(ctx, i, rs, userID, logger)
			if err != nil {
				return err
			}
			clients[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	inbox, err := first.backend.NewItemsList()
	if err != nil {
		return nil, fmt.Errorf("failed to find the new items list: %w", err)
	}

	var (
		mu        sync.Mutex
		writes    = make(map[string]write, cfg.Clients*cfg.TasksPerClient)
		mutations = make([]time.Duration, 0, cfg.Clients*cfg.TasksPerClient)
		failures  int
	)

	benchStart := time.Now()
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			for n := 0; n < cfg.TasksPerClient; n++ {
				start := time.Now()
				task, err := c.backend.AddTask(ctx, backend.NewTask{
					Title:  fmt.Sprintf("client %d task %d", c.index, n),
					ListID: inbox.ID,
				})
				elapsed := time.Since(start)

				mu.Lock()
				mutations = append(mutations, elapsed)
				if err != nil {
					failures++
					logger.Printf("Warning: client %d task %d failed: %v", c.index, n, err)
				}
				if task != nil {
					writes[task.ID] = write{client: c.index, start: start}
				}
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	benchDuration := time.Since(benchStart)

	converged := waitForConvergence(ctx, clients, len(writes))

	var propagation []time.Duration
	for id, w := range writes {
		for _, c := range clients {
			if c.index == w.client {
				continue
			}
			if at, ok := c.seenAt(id); ok {
				propagation = append(propagation, at.Sub(w.start))
			}
		}
	}

	total := len(mutations)
	result := &Result{
		Config:        cfg,
		Mutation:      ComputeStats(mutations),
		Propagation:   ComputeStats(propagation),
		Resources:     compareMemory(memBefore, memoryStats()),
		StartupTime:   startup,
		TotalDuration: benchDuration,
		ErrorCount:    failures,
		Converged:     converged,
		Success:       failures == 0 && converged,
		Throughput:    ThroughputMetrics{TotalMutations: total},
	}
	if benchDuration > 0 {
		result.Throughput.MutationsPerSecond = float64(total) / benchDuration.Seconds()
	}
	if total > 0 {
		result.ErrorRate = float64(failures) / float64(total)
	}
	return result, nil
}

func startClient(ctx context.Context, index int, rs remote.Store, userID string, logger *log.Logger) (*client, error) {
	c := &client{
		index: index,
		auth:  auth.NewManual(),
		seen:  make(map[string]time.Time),
	}
	b, err := backend.New(backend.Config{Remote: rs, Auth: c.auth, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("failed to create client %d: %w", index, err)
	}
	c.backend = b
	c.cancel = b.Subscribe(types.CollectionTasks, c.observe)

	if err := b.Init(ctx); err != nil {
		c.cancel()
		_ = b.Close()
		return nil, fmt.Errorf("failed to start client %d: %w", index, err)
	}
	c.auth.Login(userID)
	if err := b.WaitUntilLoaded(ctx); err != nil {
		c.cancel()
		_ = b.Close()
		return nil, fmt.Errorf("client %d did not finish loading: %w", index, err)
	}
	return c, nil
}

// waitForConvergence polls until every client has observed want tasks or ctx
// ends.
func waitForConvergence(ctx context.Context, clients []*client, want int) bool {
	ticker := time.NewTicker(convergePoll)
	defer ticker.Stop()
	for {
		done := true
		for _, c := range clients {
			if c.seenCount() < want {
				done = false
				break
			}
		}
		if done {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
