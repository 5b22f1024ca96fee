package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/crewbase/lifecycle-engine/internal/engine"
	"github.com/crewbase/lifecycle-engine/internal/model"
	"github.com/crewbase/lifecycle-engine/internal/notify"
	"github.com/crewbase/lifecycle-engine/internal/policy"
	"github.com/crewbase/lifecycle-engine/internal/store"
)

// engineEnv holds the initialized store, policy, engine, and notifier shared
// by the commands.
type engineEnv struct {
	Store    store.Store
	Policy   policy.Policy
	Engine   *engine.Engine
	Notifier *notify.Notifier
}

// Close releases resources held by the environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "lifecycle.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
			MinConns: int32(cfg.Store.MinConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func loadPolicy() (policy.Policy, error) {
	if cfg.Policy.Path == "" {
		return policy.Default(), nil
	}
	return policy.Load(cfg.Policy.Path)
}

// initEngine validates the config for mode, opens the store, runs migration,
// and builds the engine and webhook notifier. Callers should defer
// env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pol, err := loadPolicy()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	notifier := notify.New(notify.Config{
		WebhookURL:    cfg.Notify.WebhookURL,
		Timeout:       time.Duration(cfg.Notify.TimeoutSecs) * time.Second,
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		Retry:         cfg.Notify.RetryConfig(),
	})
	if !notifier.Enabled() {
		zap.L().Debug("LIFECYCLE_NOTIFY_WEBHOOK_URL not set, webhook delivery disabled")
	}

	return &engineEnv{
		Store:    st,
		Policy:   pol,
		Engine:   engine.New(st, pol),
		Notifier: notifier,
	}, nil
}

// deliver pushes freshly stored events to the webhook. Failures are logged,
// not returned: the events are durable and the command's own work succeeded.
func (e *engineEnv) deliver(ctx context.Context, events []model.NotificationEvent) {
	if err := e.Notifier.Deliver(ctx, events); err != nil {
		zap.L().Warn("webhook delivery failed", zap.Int("events", len(events)), zap.Error(err))
	}
}
