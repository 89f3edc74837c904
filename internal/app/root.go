// Package app implements the crate command line.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mmcdole/crate/internal/config"
	"github.com/mmcdole/crate/internal/log"
)

// cli holds the persistent flags and the runtime of the running command.
type cli struct {
	version   string
	configDir string
	fixture   string
	owner     string
	noColor   bool
	debug     bool

	loader *config.Loader
	rt     *runtime
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	c := &cli{version: version}

	root := &cobra.Command{
		Use:   "crate",
		Short: "Keep a local cache of a record collection in sync",
		Long: `crate caches a record collection from the collection API and keeps it fresh.

Reads are always served from the local cache. A stale cache is refreshed in
the background while the cached copy stays usable.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configDir, "config", "", "Directory holding config.yaml (default: ~/.config/crate)")
	pf.StringVar(&c.fixture, "fixture", "", "Serve the collection from a YAML export instead of the API")
	pf.StringVarP(&c.owner, "owner", "o", "", "Collection owner (default: owner from config)")
	pf.BoolVar(&c.noColor, "no-color", false, "Disable colored output")
	pf.BoolVar(&c.debug, "debug", false, "Log to stderr at debug level")

	root.AddCommand(
		c.newLoadCmd(),
		c.newCheckCmd(),
		c.newUpdateCmd(),
		c.newClearCmd(),
		c.newStatusCmd(),
		c.newListCmd(),
		c.newLogoutCmd(),
	)
	return root
}

// Execute is the entry point called from main. Interrupts cancel the
// running command.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// run wraps a command body: it wires the runtime before fn and always
// shuts it down afterwards.
func (c *cli) run(needsRemote bool, fn func(cmd *cobra.Command, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := c.setup(cmd, needsRemote); err != nil {
			return err
		}
		defer func() {
			if cerr := c.rt.close(cmd.Context()); err == nil {
				err = cerr
			}
			c.rt = nil
		}()
		return fn(cmd, c.rt)
	}
}

func (c *cli) setup(cmd *cobra.Command, needsRemote bool) error {
	c.loader = config.NewLoader()
	if c.configDir != "" {
		c.loader = config.NewLoader(c.configDir)
	}
	cfg, err := c.loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.owner != "" {
		cfg.Owner = c.owner
	}
	if cfg.Owner == "" {
		return fmt.Errorf("no owner: set owner in config, CRATE_OWNER, or pass --owner")
	}
	if needsRemote && c.fixture == "" && !cfg.IsConfigured() {
		return fmt.Errorf("no API token configured: set remote.token or CRATE_REMOTE_TOKEN, or pass --fixture")
	}

	logger := log.NullLogger()
	var logFile io.Closer
	if c.debug {
		logger = log.New(cmd.ErrOrStderr(), "DEBUG")
	} else if l, f, err := log.SetupLogger(&cfg.Logging); err == nil {
		logger, logFile = l, f
	}
	slog.SetDefault(logger)

	rt, err := newRuntime(cfg, c.fixture, logger)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return err
	}
	if logFile != nil {
		rt.closers = append(rt.closers, logFile)
	}
	c.rt = rt

	logger.Info("starting crate", "version", c.version, "command", cmd.Name(),
		"owner", cfg.Owner, "backend", cfg.Cache.Backend)
	return nil
}
