package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"laborcond/config"
	"laborcond/db"
	"laborcond/inference"
	"laborcond/logging"
	"laborcond/metrics"
	"laborcond/ml"
	"laborcond/registry"
)

// app holds the components every subcommand is built from.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	loader   *ml.DirLoader
	cache    *ml.CachedLoader
	store    *ml.ModelStore
	metrics  *metrics.Metrics
	db       *db.Store
	benefits *inference.BenefitInvoker
	wages    *inference.WageComparator
}

func newApp() (*app, error) {
	v := config.New()
	if modelsDir != "" {
		v.Set("models.dir", modelsDir)
	}
	if jsonLog {
		v.Set("log.json", true)
	}
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, debugLog)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	reg := registry.Default()
	if cfg.Models.Manifest != "" {
		reg, err = registry.Load(cfg.Models.Manifest)
		if err != nil {
			return nil, fmt.Errorf("load model manifest: %w", err)
		}
		logger.Info("loaded model manifest", zap.String("path", cfg.Models.Manifest))
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		loader:   ml.NewDirLoader(cfg.Models.Dir),
		metrics:  metrics.New(),
	}

	a.cache, err = ml.NewCachedLoader(a.loader, cfg.Models.CacheSize, ml.WithLoadObserver(a.observeLoad))
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	a.store = ml.NewModelStore(a.cache)

	opts := []inference.Option{
		inference.WithLogger(logger),
		inference.WithRecorder(a.metrics),
	}
	if cfg.DB.Path != "" {
		a.db, err = db.Open(cfg.DB.Path)
		if err != nil {
			return nil, fmt.Errorf("open prediction log: %w", err)
		}
		opts = append(opts, inference.WithRecorder(a.db))
		logger.Info("prediction log enabled", zap.String("path", cfg.DB.Path))
	}

	a.benefits = inference.NewBenefitInvoker(reg, a.store, opts...)
	a.wages = inference.NewWageComparator(reg, a.store, opts...)
	return a, nil
}

func (a *app) observeLoad(id string, cached bool, elapsed time.Duration, err error) {
	a.metrics.ObserveModelLoad(id, cached, elapsed, err)
	if err != nil {
		a.logger.Warn("model load failed", zap.String("artifact", id), zap.Error(err))
		return
	}
	if !cached {
		a.logger.Debug("model loaded", zap.String("artifact", id), zap.Duration("elapsed", elapsed))
	}
}

func (a *app) Close() error {
	var errs []error
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	// stdout sync fails on some terminals
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
