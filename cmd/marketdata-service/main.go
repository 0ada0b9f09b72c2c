package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reservoir-data/marketdata-core/go/api"
	"github.com/reservoir-data/marketdata-core/go/feed"
	"github.com/reservoir-data/marketdata-core/go/runtime"
	log "github.com/sirupsen/logrus"
)

var cfg = func() runtime.Config {
	var c runtime.Config
	// go-flags has no clean "default true" for bool options; set the
	// spec-mandated defaults here so an absent flag/env var means enabled.
	c.Quality.Enabled = true
	c.Quality.AlertingEnabled = true
	return c
}()

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}
	log.WithField("config", cfg).Info("market data service configuration")

	upstream := feed.NewSimulated()
	sup := runtime.NewSupervisor(cfg, upstream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		log.WithField("err", err).Error("failed to start market data service")
		return err
	}

	handlers := &api.Handlers{
		Service:         sup.Gate(),
		Fanout:          sup.Fanout(),
		Quality:         sup.QualityCore(),
		IssueTracker:    sup.IssueTracker(),
		MinQualityScore: cfg.Quality.MinQualityScore,
	}

	apiSrv := &http.Server{Addr: cfg.API.Addr, Handler: api.Mux(handlers)}
	go func() {
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("err", err).Error("API server failed")
		}
	}()

	metricsMux := http.NewServeMux()
	if m := sup.Metrics(); m != nil {
		metricsMux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}
	metricsSrv := &http.Server{Addr: cfg.API.MetricsAddr, Handler: metricsMux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithField("err", err).Error("metrics server failed")
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-signalCh
	log.WithField("signal", sig).Info("caught signal, shutting down")

	_ = apiSrv.Close()
	_ = metricsSrv.Close()
	_ = sup.Stop()

	log.Info("goodbye")
	return nil
}

func main() {
	parser := flags.NewParser(&cfg, flags.Default)
	parser.AddCommand("serve", "Run the market data service", "", &cmdServe{})

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
