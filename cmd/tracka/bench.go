package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/benchmark"
	"github.com/michaelomichael/tracka/internal/remote"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "maintenance",
	Short:   "Benchmark concurrent sessions against the local remote stores",
	Long: `Run several sessions of one throwaway user against a shared remote store
and report write latency, propagation latency and throughput.

The stores are created in a temporary directory and removed afterwards, so
your own data is never touched. Available stores: mem, file, sqlite.

Examples:
  tracka bench
  tracka bench --stores sqlite --clients 16 --tasks 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		clients, _ := cmd.Flags().GetInt("clients")
		tasks, _ := cmd.Flags().GetInt("tasks")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		stores, _ := cmd.Flags().GetStringSlice("stores")

		dir, err := os.MkdirTemp("", "tracka-bench-")
		if err != nil {
			return fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		targets, err := benchTargets(stores, dir)
		if err != nil {
			return err
		}

		cfg := benchmark.Config{Clients: clients, TasksPerClient: tasks, Timeout: timeout}
		result, err := benchmark.Compare(cmd.Context(), cfg, targets, logs.Logger("bench"))
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(result)
		}
		for _, r := range result.Results {
			benchmark.PrintResult(os.Stdout, r)
		}
		if len(result.Results) > 1 {
			benchmark.PrintComparison(os.Stdout, result)
		}
		return nil
	},
}

func benchTargets(stores []string, dir string) ([]benchmark.Target, error) {
	var targets []benchmark.Target
	for _, name := range stores {
		var url string
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "mem", "memory":
			url = "mem://"
		case "file":
			url = "file://" + filepath.ToSlash(filepath.Join(dir, "docs"))
		case "sqlite":
			url = "sqlite://" + filepath.ToSlash(filepath.Join(dir, "bench.db"))
		default:
			return nil, fmt.Errorf("unknown store %q (want mem, file or sqlite)", name)
		}
		targets = append(targets, benchmark.Target{
			Name: name,
			Open: func(ctx context.Context) (remote.Store, error) {
				return openRemote(ctx, url, 20*time.Millisecond)
			},
		})
	}
	return targets, nil
}

func init() {
	def := benchmark.DefaultConfig()
	benchCmd.Flags().Int("clients", def.Clients, "number of concurrent sessions")
	benchCmd.Flags().Int("tasks", def.TasksPerClient, "tasks added by each session")
	benchCmd.Flags().Duration("timeout", def.Timeout, "limit for each run")
	benchCmd.Flags().StringSlice("stores", []string{"mem", "file", "sqlite"}, "stores to benchmark")
	rootCmd.AddCommand(benchCmd)
}
