package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/ffscout/scouter"
	"github.com/ffscout/scouter/internal/config"
	"github.com/ffscout/scouter/internal/server"
	"github.com/ffscout/scouter/prommetrics"
)

func runServe(c *cli.Context) error {
	m := getMetadata(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := prommetrics.NewRecorder(reg)

	store, closeStore, err := openStore(m.config.Store, recorder, m.log)
	if err != nil {
		return err
	}
	defer closeStore()

	keys := config.NewKeyStore(m.config.APIKey)
	scheduler := newScheduler(m, store, keys, reg, recorder)
	defer scheduler.Close()

	httpServer := &http.Server{
		Addr:              m.config.Listen,
		Handler:           server.New(scheduler, store, reg, m.log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.log.WithField("listen", m.config.Listen).Info("serve: listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		scouter.RunSweeper(ctx, store, m.config.Store.SweepInterval, scouter.NewClock(), m.log)
		return nil
	})
	if m.configFile != "" {
		g.Go(func() error {
			return keys.Watch(ctx, m.configFile, m.log)
		})
	}

	err = g.Wait()
	m.log.Info("serve: stopped")
	return err
}
