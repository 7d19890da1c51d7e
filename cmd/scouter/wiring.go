package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ffscout/scouter"
	"github.com/ffscout/scouter/internal/config"
	"github.com/ffscout/scouter/leveldbstore"
	"github.com/ffscout/scouter/prommetrics"
	"github.com/ffscout/scouter/redisstore"
)

// openStore opens the configured backend, tiered behind a memory store if
// asked to. The returned function releases it.
func openStore(cfg config.StoreConfig, recorder scouter.MetricsRecorder, log logrus.FieldLogger) (scouter.Store, func() error, error) {
	store, closeStore, err := openBackend(cfg, recorder)
	if err != nil || !cfg.Tiered || cfg.Backend == config.BackendMemory {
		return store, closeStore, err
	}
	return scouter.NewTieredStore(newMemoryStore(cfg, recorder), store, log), closeStore, nil
}

func newMemoryStore(cfg config.StoreConfig, recorder scouter.MetricsRecorder) *scouter.MemoryStore {
	var opts []scouter.StoreOption
	if recorder != nil {
		opts = append(opts, scouter.WithStoreMetrics(recorder))
	}
	return scouter.NewMemoryStore(cfg.Capacity, cfg.Shards, cfg.CacheInterval, cfg.EvictionPercentage, opts...)
}

func openBackend(cfg config.StoreConfig, recorder scouter.MetricsRecorder) (scouter.Store, func() error, error) {
	switch cfg.Backend {
	case config.BackendLevelDB:
		store, err := leveldbstore.Open(cfg.Path, cfg.CacheInterval)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case config.BackendRedis:
		client := redisstore.NewClient(cfg.Redis)
		store := redisstore.New(client, cfg.CacheInterval, redisstore.WithKeyPrefix(cfg.Redis.KeyPrefix))
		return store, client.Close, nil
	default:
		return newMemoryStore(cfg, recorder), func() error { return nil }, nil
	}
}

// newScheduler wires the scheduler to the store and the stats service.
func newScheduler(m *metadata, store scouter.Store, keys scouter.KeySource, reg prometheus.Registerer, recorder scouter.MetricsRecorder) *scouter.Scouter {
	opts := append(m.config.SchedulerOptions(), scouter.WithLogger(m.log))
	if recorder != nil {
		opts = append(opts, scouter.WithMetrics(recorder))
	}
	client := scouter.NewHTTPClient(m.config.BaseURL, nil)
	s := scouter.New(store, client, keys, opts...)
	if reg != nil {
		reg.MustRegister(prommetrics.NewSchedulerCollector(s))
	}
	return s
}
