// Package backend assembles an Orderer from configuration: the store, the
// optional writer and the optional NATS notifier.
package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vaulted/rankkey"
	"github.com/vaulted/rankkey/internal/config"
	"github.com/vaulted/rankkey/internal/notify"
	"github.com/vaulted/rankkey/ordering"
	"github.com/vaulted/rankkey/store/filestore"
	"github.com/vaulted/rankkey/store/memstore"
	"github.com/vaulted/rankkey/store/mongostore"
	"github.com/vaulted/rankkey/store/sqlstore"
)

// Backend owns everything an Orderer needs. Close releases it in reverse
// order of construction.
type Backend struct {
	Orderer *ordering.Orderer
	Store   ordering.Store
	Writer  *ordering.Writer // nil unless writer.async is set

	closers []func(context.Context) error
}

// OpenStore opens the store selected by cfg.Backend. The returned function
// releases it.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (ordering.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memstore.New(), noop, nil
	case config.BackendSQLite:
		s, err := sqlstore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) error { return s.Close() }, nil
	case config.BackendFile:
		s, err := filestore.Open(cfg.FileDir)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.BackendMongo:
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// Open builds a Backend from cfg.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rc, err := cfg.Rank.RankerConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	unranked, err := cfg.Rank.UnrankedKey()
	if err != nil {
		return nil, fmt.Errorf("%w: rank.unranked: %w", config.ErrInvalidConfig, err)
	}
	var jitter rankkey.Jitter
	if rc.JitterRange > 0 {
		jitter = rankkey.NewRandJitter(rand64())
	}

	store, closeStore, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	b := &Backend{Store: store, closers: []func(context.Context) error{closeStore}}

	opts := []ordering.Option{
		ordering.WithRanker(rankkey.NewRanker(rc, jitter)),
		ordering.WithUnranked(unranked),
		ordering.WithLogger(log),
	}
	if cfg.Writer.Concurrency > 0 {
		opts = append(opts, ordering.WithConcurrency(cfg.Writer.Concurrency))
	}
	if cfg.Events.Enabled {
		pub, err := notify.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, log)
		if err != nil {
			_ = b.Close(ctx)
			return nil, err
		}
		b.closers = append(b.closers, pub.Close)
		opts = append(opts, ordering.WithNotifier(pub))
	}
	if cfg.Writer.Async {
		b.Writer = ordering.NewWriter(store, cfg.Writer.Ordering(), log)
		b.closers = append(b.closers, b.Writer.Close)
		opts = append(opts, ordering.WithWriter(b.Writer))
	}

	b.Orderer = ordering.New(store, opts...)
	log.Debug("Backend ready",
		zap.String("store", cfg.Store.Backend),
		zap.Bool("async", cfg.Writer.Async),
		zap.Bool("events", cfg.Events.Enabled),
	)
	return b, nil
}

// Close drains the writer, then closes the notifier and the store.
func (b *Backend) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	b.closers = nil
	return errors.Join(errs...)
}
