// Command rankctl generates rank keys and manages stored item orders.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vaulted/rankkey/internal/backend"
	"github.com/vaulted/rankkey/internal/config"
	"github.com/vaulted/rankkey/internal/logging"
	"github.com/vaulted/rankkey/ordering"
)

var errNoContext = errors.New("--context is required")

// app carries global flags and what PersistentPreRunE builds from them.
type app struct {
	cfgPath   string
	contextID string
	userID    string
	storeName string
	verbose   bool
	timeout   time.Duration

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "rankctl",
		Short: "Rank key generation and per-context item ordering",
		Long: `rankctl works with lexicographic rank keys of the form
<bucket>|<6 base36 digits>:<sublevel>, whose byte order is the item order.

Key commands (parse, between, next, prev, spread) are pure. Ordering commands
(list, add, move, remove, rebalance, clone, prune) read and write the rank
entries of one context and user in the configured store.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	addGlobalFlags(root.PersistentFlags(), a)

	root.AddCommand(
		newParseCmd(),
		newBetweenCmd(),
		newNextCmd(),
		newPrevCmd(),
		newSpreadCmd(),
		newListCmd(a),
		newAddCmd(a),
		newMoveCmd(a),
		newRemoveCmd(a),
		newRebalanceCmd(a),
		newCloneCmd(a),
		newPruneCmd(a),
	)
	return root
}

func addGlobalFlags(fs *pflag.FlagSet, a *app) {
	fs.StringVarP(&a.cfgPath, "config", "c", "", "config file (.yml, .yaml, .json or .jsonc)")
	fs.StringVar(&a.contextID, "context", "", "context (list) ID")
	fs.StringVar(&a.userID, "user", "", "user ID owning the order")
	fs.StringVar(&a.storeName, "backend", "", "store backend: memory, sqlite, mongo, file (overrides config)")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	fs.DurationVar(&a.timeout, "timeout", 0, "operation timeout (default: store.timeout from config)")
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.storeName != "" {
		cfg.Store.Backend = a.storeName
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if a.timeout == 0 {
		a.timeout = cfg.Store.Timeout
	}
	a.cfg = cfg

	a.log, err = logging.New(cfg.Log, a.verbose)
	return err
}

func (a *app) scope() (ordering.Scope, error) {
	if a.contextID == "" {
		return ordering.Scope{}, errNoContext
	}
	return ordering.Scope{ContextID: a.contextID, UserID: a.userID}, nil
}

// withBackend opens the configured backend, runs f and closes the backend,
// draining any asynchronous writes.
func (a *app) withBackend(cmd *cobra.Command, f func(ctx context.Context, b *backend.Backend, scope ordering.Scope) error) error {
	scope, err := a.scope()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	b, err := backend.Open(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	runErr := f(ctx, b, scope)
	if err := b.Close(context.WithoutCancel(ctx)); err != nil {
		a.log.Warn("Closing backend failed", zap.Error(err))
	}
	return runErr
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
