// Command tracka manages lists and tasks stored in a shared document store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/michaelomichael/tracka/internal/config"
	"github.com/michaelomichael/tracka/internal/logging"
	"github.com/michaelomichael/tracka/internal/ui"
)

var (
	cfgFile    string
	verbose    bool
	jsonOutput bool
	userFlag   string

	v    = config.New()
	cfg  *config.Config
	logs = logging.New(logging.Options{})
)

var rootCmd = &cobra.Command{
	Use:   "tracka",
	Short: "Lists and tasks, synced through a shared document store",
	Long: `tracka keeps a local view of your lists and tasks in sync with a document
store (an embedded SQLite file, a directory of JSON files, a Turso database or
PostgreSQL) and keeps the references between them consistent.

Every command opens a session for the current user, waits until all documents
are loaded and checked, runs, and exits. 'tracka watch' and 'tracka dashboard'
keep the session open and report changes as they arrive.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logs = logging.New(logging.Options{
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    verbose,
		})
		ui.Init()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logs.Close()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Lists and tasks:"},
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: search $XDG_CONFIG_HOME/tracka, ~/.tracka, .)")
	flags.String("remote", "", "document store URL (mem://, file:///dir, sqlite:///file.db, libsql://host, postgres://...)")
	flags.StringVar(&userFlag, "user", "", "act as this user id instead of the logged-in user")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log session activity to stderr")
	flags.BoolVar(&jsonOutput, "json", false, "print results as JSON")

	if err := v.BindPFlag(config.KeyRemoteURL, flags.Lookup("remote")); err != nil {
		panic(err)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

// exitError ends the process with a specific status after printing err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
