package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"brokereye/app/aggregate"
	"brokereye/app/cache"
	"brokereye/app/fileloader"
	"brokereye/app/groups"
	"brokereye/app/interfaces"
	"brokereye/app/query"
	"brokereye/app/settings"
	"brokereye/app/timestamps"
	"brokereye/app/view"
	"brokereye/app/worker"
)

// app holds the services a command needs. Everything past settings is built
// on first use so that "groups list" never starts a worker pool.
type app struct {
	svc    *settings.SettingsService
	cfg    settings.Settings
	logger *slog.Logger
	out    io.Writer
	output string

	registry *prometheus.Registry
	store    *groups.Store
	client   *worker.Client
	cache    *cache.Cache
	engine   *view.Engine
}

// groupStorePath resolves a relative store path against the settings file.
func (a *app) groupStorePath() string {
	p := a.cfg.GroupStorePath
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(a.svc.Path()), p)
}

func (a *app) persister(ctx context.Context) (groups.Persister, error) {
	switch a.cfg.GroupStoreBackend {
	case "", settings.BackendFile:
		return groups.NewFilePersister(a.groupStorePath()), nil
	case settings.BackendDynamoDB:
		if a.cfg.DynamoDBTable == "" {
			return nil, fmt.Errorf("dynamodb_table must be set for the %s backend", settings.BackendDynamoDB)
		}
		return groups.NewDynamoPersisterFromConfig(ctx, a.cfg.DynamoDBTable, a.logger)
	}
	return nil, fmt.Errorf("unknown group store backend %q", a.cfg.GroupStoreBackend)
}

// groupStore loads the persisted groups and restores saved selections.
func (a *app) groupStore(ctx context.Context) (*groups.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	p, err := a.persister(ctx)
	if err != nil {
		return nil, err
	}
	s := groups.NewStore(groups.WithPersister(p), groups.WithLogger(a.logger))
	s.Load(ctx)
	if n := s.Registry().Restore(a.cfg.ActiveFilters); n != len(a.cfg.ActiveFilters) {
		a.logger.Info("dropped stale active filters", "saved", len(a.cfg.ActiveFilters), "restored", n)
	}
	a.store = s
	return s, nil
}

// saveActiveFilters writes the registry back to settings when it changed.
func (a *app) saveActiveFilters() error {
	if a.store == nil {
		return nil
	}
	snap := a.store.Registry().Snapshot()
	if equalSelections(snap, a.cfg.ActiveFilters) {
		return nil
	}
	a.cfg.ActiveFilters = snap
	if err := a.svc.SaveSettings(a.cfg); err != nil {
		return fmt.Errorf("save active filters: %w", err)
	}
	return nil
}

func equalSelections(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (a *app) statsOptions(signOverride string) (aggregate.Options, error) {
	sign := a.cfg.PnLSign
	if signOverride != "" {
		sign = signOverride
	}
	sc, err := aggregate.ParseSignConvention(sign)
	if err != nil {
		return aggregate.Options{}, err
	}
	return aggregate.Options{Sign: sc}, nil
}

// viewEngine wires cache, worker pool and store into a view engine.
func (a *app) viewEngine(ctx context.Context, ds *interfaces.Dataset, stats aggregate.Options) (*view.Engine, error) {
	if a.engine != nil {
		return a.engine, nil
	}
	store, err := a.groupStore(ctx)
	if err != nil {
		return nil, err
	}
	a.registry = prometheus.NewRegistry()

	pool := worker.NewPool(
		worker.WithWorkers(a.cfg.WorkerCount),
		worker.WithQueueSize(a.cfg.WorkerQueueSize),
		worker.WithLogger(a.logger),
		worker.WithRegisterer(a.registry),
	)
	pool.Start(ctx)
	a.client = worker.NewClient(pool, a.logger)

	opts := []view.Option{
		view.WithWorker(a.client),
		view.WithOffloadThreshold(a.cfg.OffloadThreshold),
		view.WithStatsOptions(stats),
		view.WithKeyField(a.cfg.KeyField),
		view.WithDedupOptions(query.DedupOptions{
			KeyField:          a.cfg.KeyField,
			RatioThreshold:    a.cfg.DedupRatioThreshold,
			AbsoluteThreshold: a.cfg.DedupAbsoluteThreshold,
		}),
		view.WithLogger(a.logger),
	}
	if a.cfg.EnableQueryCache {
		a.cache = cache.NewCache(int64(a.cfg.CacheSizeLimitMB)<<20, cache.WithLogger(a.logger), cache.WithRegisterer(a.registry))
		opts = append(opts, view.WithCache(a.cache, query.CacheConfigFromSettings(true)))
	}
	if tf := timestamps.DetectTimestampField(ds.Fields); tf != "" {
		opts = append(opts, view.WithTimeFields(tf))
	}
	a.engine = view.NewEngine(store, opts...)
	return a.engine, nil
}

func (a *app) load(ctx context.Context, path, jsonPath, sheet string, noHeader bool) (*interfaces.Dataset, error) {
	return fileloader.Load(ctx, path, fileloader.Options{
		KeyField:    a.cfg.KeyField,
		JSONPath:    jsonPath,
		Sheet:       sheet,
		NoHeaderRow: noHeader,
		MaxFiles:    a.cfg.MaxDirectoryFiles,
		Logger:      a.logger,
	})
}

func (a *app) close() error {
	if a.cache != nil {
		st := a.cache.GetCacheStats()
		a.logger.Debug("query cache",
			"entries", st.TotalEntries,
			"bytes", st.TotalSize,
			"hit_rate", st.HitRate,
			"group_dependent", st.GroupDependent)
	}
	var err error
	if a.client != nil {
		err = a.client.Close()
		a.client = nil
	}
	return err
}
