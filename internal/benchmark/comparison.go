package benchmark

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/michaelomichael/tracka/internal/remote"
)

// Target is a remote store to benchmark. Open is called once per run and the
// returned store is closed afterwards.
type Target struct {
	Name string
	Open func(ctx context.Context) (remote.Store, error)
}

// Comparison holds one result per target, fastest propagation first.
type Comparison struct {
	Results []*Result `json:"results"`

	// Winner is the target with the lowest P95 propagation latency among
	// the runs that succeeded. Empty when none did.
	Winner string `json:"winner"`
}

// Compare runs the same configuration against every target in turn.
func Compare(ctx context.Context, cfg Config, targets []Target, logger *log.Logger) (*Comparison, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("benchmark: no targets to compare")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	out := &Comparison{}
	for _, t := range targets {
		logger.Printf("Running %s benchmark...", t.Name)
		rs, err := t.Open(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", t.Name, err)
		}
		run := cfg
		run.Remote = t.Name
		res, err := Run(ctx, run, rs, logger)
		if cerr := rs.Close(); cerr != nil {
			logger.Printf("Warning: failed to close %s: %v", t.Name, cerr)
		}
		if err != nil {
			return nil, fmt.Errorf("%s benchmark failed: %w", t.Name, err)
		}
		out.Results = append(out.Results, res)
	}

	sort.SliceStable(out.Results, func(i, j int) bool {
		a, b := out.Results[i], out.Results[j]
		if a.Success != b.Success {
			return a.Success
		}
		return a.Propagation.P95 < b.Propagation.P95
	})
	if out.Results[0].Success {
		out.Winner = out.Results[0].Config.Remote
	}
	return out, nil
}

// PrintComparison writes a side-by-side table of every result.
func PrintComparison(w io.Writer, c *Comparison) {
	separator := strings.Repeat("=", 80)
	fmt.Fprintf(w, "\n%s\nREMOTE STORE COMPARISON\n%s\n\n", separator, separator)
	if len(c.Results) > 0 {
		cfg := c.Results[0].Config
		fmt.Fprintf(w, "Clients: %d, tasks per client: %d\n\n", cfg.Clients, cfg.TasksPerClient)
	}

	fmt.Fprintf(w, "%-10s | %-10s | %-10s | %-10s | %-10s | %-10s | %s\n",
		"Remote", "Write P50", "Write P95", "Sync P50", "Sync P95", "Writes/s", "OK")
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 80))
	for _, r := range c.Results {
		ok := "✓"
		if !r.Success {
			ok = fmt.Sprintf("✗ (%d errors, converged=%v)", r.ErrorCount, r.Converged)
		}
		fmt.Fprintf(w, "%-10s | %-10s | %-10s | %-10s | %-10s | %-10.1f | %s\n",
			r.Config.Remote,
			FormatDuration(r.Mutation.P50),
			FormatDuration(r.Mutation.P95),
			FormatDuration(r.Propagation.P50),
			FormatDuration(r.Propagation.P95),
			r.Throughput.MutationsPerSecond,
			ok)
	}
	fmt.Fprintln(w)

	if c.Winner != "" {
		fmt.Fprintf(w, "Fastest propagation: %s\n", strings.ToUpper(c.Winner))
	} else {
		fmt.Fprintf(w, "No run succeeded\n")
	}
	fmt.Fprintf(w, "\n%s\n\n", separator)
}
