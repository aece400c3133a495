package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
	"github.com/Niabag/Plublista-sub000/internal/config"
	"github.com/Niabag/Plublista-sub000/internal/credits"
	"github.com/Niabag/Plublista-sub000/internal/db"
	"github.com/Niabag/Plublista-sub000/internal/kv"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/internal/profile"
	"github.com/Niabag/Plublista-sub000/internal/publishing"
	"github.com/Niabag/Plublista-sub000/internal/secrets"
	"github.com/Niabag/Plublista-sub000/internal/store"
	"github.com/Niabag/Plublista-sub000/internal/telemetry"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

// app holds the process-wide connections. Commands open only what they use.
type app struct {
	log   *slog.Logger
	pool  *pgxpool.Pool
	redis *redis.Client
	queue *queue.RedisStorage
	qcfg  queue.Config
}

func newLogger() (*slog.Logger, error) {
	var cfg logger.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	log, err := logger.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

// openApp connects to Postgres and, when withQueue is set, to the Redis
// backed queue.
func openApp(ctx context.Context, withQueue bool) (*app, error) {
	log, err := newLogger()
	if err != nil {
		return nil, err
	}
	a := &app{log: log}

	var dbCfg db.Config
	if err := config.Load(&dbCfg); err != nil {
		return nil, err
	}
	if a.pool, err = db.Connect(ctx, dbCfg); err != nil {
		return nil, err
	}

	if withQueue {
		if err := a.openQueue(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openQueue(ctx context.Context) error {
	var kvCfg kv.Config
	if err := config.Load(&kvCfg); err != nil {
		return err
	}
	if err := config.Load(&a.qcfg); err != nil {
		return err
	}

	var err error
	if a.redis, err = kv.Connect(ctx, kvCfg); err != nil {
		return err
	}
	a.queue, err = queue.NewRedisStorage(a.redis, queue.WithKeyPrefix(a.qcfg.KeyPrefix))
	return err
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Error("close redis", logger.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) cipher() (*secrets.Cipher, error) {
	var cfg secrets.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	return secrets.New(cfg.EncryptionKey)
}

func (a *app) aggregator() (*ayrshare.Client, error) {
	var cfg ayrshare.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, ayrshare.ErrMissingAPIKey
	}
	return ayrshare.New(cfg), nil
}

func (a *app) enqueuer() (*queue.Enqueuer, error) {
	if a.queue == nil {
		return nil, errors.New("queue storage is not connected")
	}
	return queue.NewEnqueuer(a.queue, queue.WithDefaultMaxAttempts(a.qcfg.MaxAttempts))
}

// publishing builds the producer service on top of the open connections.
func (a *app) publishing() (*publishing.Service, error) {
	cipher, err := a.cipher()
	if err != nil {
		return nil, err
	}
	agg, err := a.aggregator()
	if err != nil {
		return nil, err
	}
	enq, err := a.enqueuer()
	if err != nil {
		return nil, err
	}

	st := store.New(a.pool)
	return publishing.New(st,
		credits.NewPostgresLedger(a.pool),
		enq,
		profile.New(st, agg, cipher),
		agg,
		publishing.WithLogger(a.log),
	), nil
}

func (a *app) costs() telemetry.CostLogger {
	return telemetry.NewPostgres(a.pool, a.log)
}
