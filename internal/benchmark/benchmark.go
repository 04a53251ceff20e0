// Package benchmark measures how a remote store behaves when several sessions
// of the same user write to it at once.
//
// Each simulated client is a full backend.Backend attached to one shared
// remote.Store. Clients add tasks concurrently; the run records how long each
// AddTask call takes and how long the new task takes to appear in every other
// client's entity store.
package benchmark

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"time"
)

// Config defines the parameters for a benchmark run.
type Config struct {
	// Clients is the number of concurrent sessions.
	Clients int

	// TasksPerClient is how many tasks each session adds.
	TasksPerClient int

	// Remote names the store under test. Used only for reporting.
	Remote string

	// Timeout bounds the whole run, including waiting for propagation.
	Timeout time.Duration
}

// DefaultConfig returns a configuration that finishes in a few seconds on
// the in-memory store.
func DefaultConfig() Config {
	return Config{
		Clients:        8,
		TasksPerClient: 25,
		Remote:         "memory",
		Timeout:        time.Minute,
	}
}

func (c Config) validate() error {
	if c.Clients < 1 {
		return fmt.Errorf("benchmark: clients must be at least 1, got %d", c.Clients)
	}
	if c.TasksPerClient < 1 {
		return fmt.Errorf("benchmark: tasks per client must be at least 1, got %d", c.TasksPerClient)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("benchmark: timeout must be positive")
	}
	return nil
}

// Result captures all metrics from a benchmark run.
type Result struct {
	Config Config `json:"config"`

	// Mutation is the latency of AddTask as seen by the writing client.
	Mutation LatencyMetrics `json:"mutation"`

	// Propagation is the delay between the start of an AddTask call and the
	// task appearing in another client's store.
	Propagation LatencyMetrics `json:"propagation"`

	Throughput ThroughputMetrics `json:"throughput"`
	Resources  ResourceMetrics   `json:"resources"`

	// StartupTime is how long the first client took to load and provision
	// its default lists.
	StartupTime time.Duration `json:"startupTime"`

	TotalDuration time.Duration `json:"totalDuration"`
	ErrorCount    int           `json:"errorCount"`
	ErrorRate     float64       `json:"errorRate"`

	// Converged reports whether every client ended up with every task.
	Converged bool `json:"converged"`
	Success   bool `json:"success"`
}

// LatencyMetrics captures latency statistics.
type LatencyMetrics struct {
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	P50   time.Duration `json:"p50"`
	Mean  time.Duration `json:"mean"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// ThroughputMetrics captures mutations per second.
type ThroughputMetrics struct {
	MutationsPerSecond float64 `json:"mutationsPerSecond"`
	TotalMutations     int     `json:"totalMutations"`
}

// ResourceMetrics captures heap usage around a run.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64 `json:"memoryBeforeBytes"`
	MemoryAfterBytes  uint64 `json:"memoryAfterBytes"`
	MemorySysBytes    uint64 `json:"memorySysBytes"`
	MemoryDeltaBytes  int64  `json:"memoryDeltaBytes"`
}

// ComputeStats calculates statistics from raw durations. The input is not
// modified.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyMetrics{
		Count: len(sorted),
		Min:   sorted[0],
		P50:   sorted[len(sorted)*50/100],
		Mean:  sum / time.Duration(len(sorted)),
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Max:   sorted[len(sorted)-1],
	}
}

func memoryStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}

func compareMemory(before, after runtime.MemStats) ResourceMetrics {
	return ResourceMetrics{
		MemoryBeforeBytes: before.HeapAlloc,
		MemoryAfterBytes:  after.HeapAlloc,
		MemorySysBytes:    after.Sys,
		MemoryDeltaBytes:  int64(after.HeapAlloc) - int64(before.HeapAlloc),
	}
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes int64) string {
	const unit = 1024
	sign := ""
	if bytes < 0 {
		sign, bytes = "-", -bytes
	}
	if bytes < unit {
		return fmt.Sprintf("%s%d B", sign, bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%s%.1f %cB", sign, float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// PrintResult writes a formatted benchmark result.
func PrintResult(w io.Writer, r *Result) {
	fmt.Fprintf(w, "\n=== Benchmark Results (%s) ===\n\n", r.Config.Remote)

	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Clients:           %d\n", r.Config.Clients)
	fmt.Fprintf(w, "  Tasks per Client:  %d\n", r.Config.TasksPerClient)
	fmt.Fprintf(w, "  Startup:           %s\n\n", FormatDuration(r.StartupTime))

	printLatency(w, "Mutation Latency", r.Mutation)
	printLatency(w, "Propagation Latency", r.Propagation)

	fmt.Fprintf(w, "Throughput:\n")
	fmt.Fprintf(w, "  Mutations/sec:     %.2f\n", r.Throughput.MutationsPerSecond)
	fmt.Fprintf(w, "  Total Mutations:   %d\n\n", r.Throughput.TotalMutations)

	fmt.Fprintf(w, "Resources:\n")
	fmt.Fprintf(w, "  Heap Before:       %s\n", FormatBytes(int64(r.Resources.MemoryBeforeBytes)))
	fmt.Fprintf(w, "  Heap After:        %s\n", FormatBytes(int64(r.Resources.MemoryAfterBytes)))
	fmt.Fprintf(w, "  Heap Delta:        %s\n", FormatBytes(r.Resources.MemoryDeltaBytes))
	fmt.Fprintf(w, "  Sys:               %s\n\n", FormatBytes(int64(r.Resources.MemorySysBytes)))

	fmt.Fprintf(w, "Overall:\n")
	fmt.Fprintf(w, "  Total Duration:    %s\n", FormatDuration(r.TotalDuration))
	fmt.Fprintf(w, "  Errors:            %d (%.2f%%)\n", r.ErrorCount, r.ErrorRate*100)
	fmt.Fprintf(w, "  Converged:         %v\n", r.Converged)
	fmt.Fprintf(w, "  Success:           %v\n\n", r.Success)
}

func printLatency(w io.Writer, title string, m LatencyMetrics) {
	fmt.Fprintf(w, "%s (%d samples):\n", title, m.Count)
	fmt.Fprintf(w, "  Min:       %s\n", FormatDuration(m.Min))
	fmt.Fprintf(w, "  P50:       %s\n", FormatDuration(m.P50))
	fmt.Fprintf(w, "  Mean:      %s\n", FormatDuration(m.Mean))
	fmt.Fprintf(w, "  P95:       %s\n", FormatDuration(m.P95))
	fmt.Fprintf(w, "  P99:       %s\n", FormatDuration(m.P99))
	fmt.Fprintf(w, "  Max:       %s\n\n", FormatDuration(m.Max))
}
