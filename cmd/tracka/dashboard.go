package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "session",
	Short:   "Serve a live WebSocket view of the session",
	Long: `Start a WebSocket server that pushes every change to the current user's
lists and tasks to connected clients.

WebSocket messages:
- list_update: a list changed or was removed
- task_update: a task changed or was removed
- state: the session moved to another lifecycle state
- warnings: the data integrity check reported new findings
- stats: list and task counts

Endpoints:
  ws://localhost:PORT/ws            message stream
  http://localhost:PORT/api/snapshot  full current state
  http://localhost:PORT/health        liveness

Allowed browser origins come from dashboard.allowed_origins.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		s, err := newSession(ctx, false)
		if err != nil {
			return err
		}
		defer s.close()

		logger := logs.Logger("dashboard")
		server := dashboard.NewServer(&dashboard.Config{
			Port:           port,
			AllowedOrigins: cfg.Dashboard.AllowedOrigins,
			Logger:         logger,
		})
		handler := dashboard.NewHandler(server, s.backend, logger)
		detach := handler.Attach()
		defer detach()

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		if err := s.start(ctx, false); err != nil {
			server.Stop()
			return err
		}

		addr := server.Addr()
		fmt.Printf("Dashboard server started on http://%s\n", addr)
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
		fmt.Printf("Snapshot: http://%s/api/snapshot\n", addr)
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		fmt.Println("Dashboard server stopped")
		return nil
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 0, "port to listen on (default: dashboard.port)")
	rootCmd.AddCommand(dashboardCmd)
}
