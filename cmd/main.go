package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomhive/interservice/config"
	"github.com/roomhive/interservice/internal/handler"
	"github.com/roomhive/interservice/internal/healthcheck"
	"github.com/roomhive/interservice/internal/httpserver"
	"github.com/roomhive/interservice/internal/metrics"
	"github.com/roomhive/interservice/pkg/circuitbreaker"
	"github.com/roomhive/interservice/pkg/httpclient"
	"github.com/roomhive/interservice/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log)
	collector.Start(ctx)

	registry := circuitbreaker.NewRegistry()

	clients, err := buildClients(cfg, registry, collector, log)
	if err != nil {
		log.Error("failed to initialize dependency clients", slog.Any("err", err))
		os.Exit(1)
	}
	defer closeClients(clients)

	if err := startHealthChecks(ctx, cfg, clients, collector, log); err != nil {
		log.Error("failed to start health checks", slog.Any("err", err))
		os.Exit(1)
	}

	relay := handler.NewRelayHandler(log, clients, collector)
	breakers := handler.NewBreakerHandler(log, registry)
	router := handler.NewRouter(relay, breakers, collector, log)

	srv, err := httpserver.New(cfg.Server.Address, router)
	if err != nil {
		log.Error("failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("relay listening",
		slog.String("address", cfg.Server.Address),
		slog.Int("dependencies", len(clients)))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("error starting relay", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

func buildClients(
	cfg *config.Config,
	registry *circuitbreaker.Registry,
	collector *metrics.Collector,
	log *slog.Logger,
) (map[string]*httpclient.ServiceClient, error) {
	transport, err := buildTransport(cfg.Transport, log)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*httpclient.ServiceClient, len(cfg.Dependencies))

	for name, dep := range cfg.Dependencies {
		breaker, excluded, err := buildBreaker(cfg.BreakerFor(name), name, collector, log)
		if err != nil {
			return nil, err
		}

		client, err := httpclient.NewServiceClient(httpclient.ClientConfig{
			Name:             name + "-service",
			BaseURL:          dep.URL,
			Breaker:          breaker,
			ExcludedStatuses: excluded,
			Transport:        transport,
			Logger:           log,
		}, registry)
		if err != nil {
			return nil, err
		}

		clients[name] = client
		log.Info("dependency client ready",
			slog.String("dependency", name),
			slog.String("url", dep.URL))
	}

	return clients, nil
}

func buildTransport(tc config.TransportConfig, log *slog.Logger) (httpclient.TransportConfig, error) {
	requestTimeout, err := time.ParseDuration(tc.RequestTimeout)
	if err != nil {
		return httpclient.TransportConfig{}, err
	}

	backoffFactor, err := time.ParseDuration(tc.BackoffFactor)
	if err != nil {
		return httpclient.TransportConfig{}, err
	}

	maxBackoff, err := time.ParseDuration(tc.MaxBackoff)
	if err != nil {
		return httpclient.TransportConfig{}, err
	}

	idleConnTimeout, err := time.ParseDuration(tc.IdleConnTimeout)
	if err != nil {
		return httpclient.TransportConfig{}, err
	}

	maxRetries := tc.MaxRetries
	if maxRetries == 0 {
		// A configured zero means no retries at all, which the policy
		// spells as a negative count.
		maxRetries = -1
	}

	return httpclient.TransportConfig{
		Timeout:             requestTimeout,
		MaxIdleConns:        tc.MaxIdleConns,
		MaxIdleConnsPerHost: tc.MaxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
		Retry: httpclient.RetryPolicy{
			MaxRetries:    maxRetries,
			BackoffFactor: backoffFactor,
			MaxBackoff:    maxBackoff,
			Jitter:        tc.Jitter,
			Methods:       tc.RetryMethods,
		},
		Logger: log,
	}, nil
}

func buildBreaker(
	bc config.BreakerConfig,
	dependency string,
	collector *metrics.Collector,
	log *slog.Logger,
) (circuitbreaker.Config, []int, error) {
	timeout, err := time.ParseDuration(bc.Timeout)
	if err != nil {
		return circuitbreaker.Config{}, nil, err
	}

	cfg := circuitbreaker.Config{
		FailureThreshold: bc.FailureThreshold,
		Timeout:          timeout,
		SuccessThreshold: bc.SuccessThreshold,
		Logger:           log,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventStateChanged,
				Timestamp:  time.Now(),
				Dependency: dependency,
				From:       from.String(),
				To:         to.String(),
			})
		},
	}

	return cfg, bc.ExcludedStatuses, nil
}

func startHealthChecks(
	ctx context.Context,
	cfg *config.Config,
	clients map[string]*httpclient.ServiceClient,
	collector *metrics.Collector,
	log *slog.Logger,
) error {
	if !cfg.HealthCheck.Enabled {
		log.Info("health checks disabled")
		return nil
	}

	interval, err := time.ParseDuration(cfg.HealthCheck.Interval)
	if err != nil {
		return err
	}

	for name, client := range clients {
		go healthcheck.HealthCheck(ctx, name, client, interval, collector, log)
	}

	return nil
}

func closeClients(clients map[string]*httpclient.ServiceClient) {
	for _, client := range clients {
		client.Close()
	}
}
