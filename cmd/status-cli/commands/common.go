package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"activestats/internal/adapters/localstorage"
	"activestats/internal/adapters/redisstore"
	"activestats/internal/adapters/statusapi"
	"activestats/internal/config"
	"activestats/internal/core/ports"
	"activestats/internal/platform/logger"
	"activestats/internal/service"
)

// AppContext holds what every command needs: settings, a logger and the
// backend client.
type AppContext struct {
	Config *config.Config
	Logger *slog.Logger
	Client *statusapi.Client
}

// NewAppContext loads the configuration and builds the backend client.
func NewAppContext(envFile string) (*AppContext, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	client, err := statusapi.NewClient(statusapi.Config{
		BaseURL:       cfg.APIBaseURL,
		Prefix:        cfg.APIPrefix,
		Timeout:       cfg.RequestTimeout,
		SessionCookie: cfg.SessionCookie,
		SessionName:   cfg.SessionCookieName,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	return &AppContext{Config: cfg, Logger: log, Client: client}, nil
}

// NewPoller creates a poller over the app's client.
func (a *AppContext) NewPoller(onUnauthorized func(location string)) *service.StatusPoller {
	opts := service.DefaultOptions()
	opts.PollInterval = a.Config.PollInterval
	opts.RetryOnError = a.Config.RetryOnError
	opts.Logger = a.Logger
	opts.OnUnauthorized = onUnauthorized
	return service.NewStatusPoller(a.Client, opts)
}

// OpenStorage opens the configured snapshot store. It returns a nil Storage
// when recording is disabled. The returned func releases the store.
func (a *AppContext) OpenStorage(ctx context.Context) (ports.Storage, func(), error) {
	switch a.Config.SnapshotStore {
	case config.StoreFile:
		return localstorage.NewLocalStorage(a.Config.DataDir), func() {}, nil
	case config.StoreRedis:
		rdb, err := redisstore.Connect(ctx, a.Config.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return redisstore.NewStore(rdb, a.Config.SnapshotTTL), func() { rdb.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

// startRecorder saves the poller's snapshots in the background. The returned
// func stops recording and waits for the last save to finish.
func startRecorder(ctx context.Context, p *service.StatusPoller, storage ports.Storage, log *slog.Logger) func() {
	if storage == nil {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.Record(ctx, p, storage, log)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
