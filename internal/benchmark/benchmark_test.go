package benchmark

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelomichael/tracka/internal/remote"
	"github.com/michaelomichael/tracka/internal/remote/filedoc"
	"github.com/michaelomichael/tracka/internal/remote/memory"
)

func TestComputeStats(t *testing.T) {
	if got := ComputeStats(nil); got != (LatencyMetrics{}) {
		t.Errorf("ComputeStats(nil) = %+v, want zero value", got)
	}

	in := []time.Duration{5, 1, 4, 2, 3}
	got := ComputeStats(in)
	if got.Count != 5 || got.Min != 1 || got.Max != 5 || got.P50 != 3 || got.Mean != 3 {
		t.Errorf("ComputeStats = %+v", got)
	}
	if in[0] != 5 {
		t.Error("ComputeStats modified its input")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{3 * 1024 * 1024, "3.0 MB"},
		{-2048, "-2.0 KB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Nanosecond, "500ns"},
		{1500 * time.Nanosecond, "1.50µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRun_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Clients = 0
	if _, err := Run(context.Background(), cfg, memory.New(), nil); err == nil {
		t.Error("Run with zero clients should fail")
	}
}

func TestRun_Memory(t *testing.T) {
	rs := memory.New()
	defer rs.Close()

	cfg := Config{Clients: 4, TasksPerClient: 10, Remote: "memory", Timeout: 30 * time.Second}
	res, err := Run(context.Background(), cfg, rs, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Success {
		t.Fatalf("run did not succeed: errors=%d converged=%v", res.ErrorCount, res.Converged)
	}
	if res.Throughput.TotalMutations != 40 {
		t.Errorf("TotalMutations = %d, want 40", res.Throughput.TotalMutations)
	}
	if res.Mutation.Count != 40 {
		t.Errorf("Mutation.Count = %d, want 40", res.Mutation.Count)
	}
	// Each task reaches the three other clients.
	if res.Propagation.Count != 120 {
		t.Errorf("Propagation.Count = %d, want 120", res.Propagation.Count)
	}

	var buf bytes.Buffer
	PrintResult(&buf, res)
	if !strings.Contains(buf.String(), "Propagation Latency (120 samples)") {
		t.Errorf("PrintResult output missing propagation section:\n%s", buf.String())
	}
}

func TestRun_SingleClient(t *testing.T) {
	rs := memory.New()
	defer rs.Close()

	res, err := Run(context.Background(), Config{Clients: 1, TasksPerClient: 3, Timeout: 10 * time.Second}, rs, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Success || res.Propagation.Count != 0 {
		t.Errorf("single client: success=%v propagation=%d", res.Success, res.Propagation.Count)
	}
}

func TestCompare(t *testing.T) {
	dir := t.TempDir()
	targets := []Target{
		{Name: "memory", Open: func(context.Context) (remote.Store, error) { return memory.New(), nil }},
		{Name: "file", Open: func(context.Context) (remote.Store, error) {
			return filedoc.Open(filepath.Join(dir, "docs"), nil)
		}},
	}

	cfg := Config{Clients: 2, TasksPerClient: 5, Timeout: 30 * time.Second}
	c, err := Compare(context.Background(), cfg, targets, nil)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if len(c.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(c.Results))
	}
	if c.Winner == "" {
		t.Error("expected a winner")
	}

	var buf bytes.Buffer
	PrintComparison(&buf, c)
	for _, name := range []string{"memory", "file"} {
		if !strings.Contains(buf.String(), name) {
			t.Errorf("comparison output missing %q", name)
		}
	}

	if _, err := Compare(context.Background(), cfg, nil, nil); err == nil {
		t.Error("Compare with no targets should fail")
	}
}
