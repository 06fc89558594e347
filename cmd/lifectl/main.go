package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/lifedb/internal/app"
	"github.com/yourorg/lifedb/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, closeApp := newRootCmd()
	err := root.ExecuteContext(ctx)
	closeApp()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// cli carries the wired App between PersistentPreRunE and the subcommands.
type cli struct {
	logLevel string
	app      *app.App
}

// newRootCmd returns the command tree and a func releasing whatever the
// executed command opened.
func newRootCmd() (*cobra.Command, func()) {
	c := &cli{}
	root := &cobra.Command{
		Use:           "lifectl",
		Short:         "Operate a lifedb capture store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			log := zap.NewNop()
			if c.logLevel != "" {
				log = logging.New(c.logLevel)
			}
			a, err := app.New(cmd.Context(), log, "cli")
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level (debug, info, warn, error); empty is silent")

	root.AddCommand(
		c.captureCmd(),
		c.tagCmd(),
		c.renameCategoryCmd(),
		c.mergeTagsCmd(),
		c.importCmd(),
		c.exportCmd(),
		c.rebuildGraphCmd(),
		c.replayOutboxCmd(),
		c.statsCmd(),
		c.watchCmd(),
	)
	return root, func() {
		if c.app != nil {
			c.app.Close(context.Background())
			c.app = nil
		}
	}
}
