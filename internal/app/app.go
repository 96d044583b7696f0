// Copyright 2025 Flant JSC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app assembles the monitoring daemon from its parts: providers,
// manager, monitor, alert handlers, sample sinks and the HTTP API.
package app

import (
	"context"
	"io"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/config"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/metrics"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/providers"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/server"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/manager"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/monitor"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/notifier"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/sink"
)

const shutdownTimeout = 5 * time.Second

// Swappable for tests so Run can be exercised without external services.
var (
	defaultProviders = providers.Default

	newSlack = func(cfg config.SlackSettings) (monitor.AlertHandler, error) {
		opts := []notifier.SlackOption{}
		if cfg.Cooldown > 0 {
			opts = append(opts, notifier.WithSlackCooldown(cfg.Cooldown.Std()))
		}
		return notifier.NewSlack(cfg.WebhookURL, cfg.Channel, opts...)
	}

	newKafka = func(cfg config.KafkaSettings) (monitor.AlertHandler, error) {
		return notifier.NewKafka(cfg.Brokers, cfg.Topic)
	}

	newClickHouse = func(cfg config.ClickHouseSettings) (sink.Sink, error) {
		return sink.NewClickHouse(sink.ClickHouseConfig{
			Addr:     cfg.Addr,
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
)

// Run wires the daemon together from cfg and blocks until ctx is done or the
// HTTP server fails. Every started component is stopped before returning.
func Run(ctx context.Context, log logr.Logger, cfg config.System) error {
	mgr := manager.New(log,
		manager.WithProviders(defaultProviders()...),
		manager.WithCacheConfig(cfg.Cache.TTL.Std(), cfg.Cache.MaxEntries),
	)
	mon := monitor.New(log, mgr, cfg.Monitor.MonitorConfig())

	collector := metrics.NewCollector()
	mon.RegisterHandler(monitor.NewLogHandler(log))
	mon.RegisterHandler(collector)
	mon.RegisterSink(collector)

	var closers []io.Closer

	if cfg.Alerts.Slack.Enabled {
		h, err := newSlack(cfg.Alerts.Slack)
		if err != nil {
			return err
		}
		mon.RegisterHandler(h)
		if c, ok := h.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	if cfg.Alerts.Kafka.Enabled {
		h, err := newKafka(cfg.Alerts.Kafka)
		if err != nil {
			return err
		}
		mon.RegisterHandler(h)
		if c, ok := h.(io.Closer); ok {
			closers = append(closers, c)
		}
	}

	if cfg.Sinks.ClickHouse.Enabled {
		s, err := newClickHouse(cfg.Sinks.ClickHouse)
		if err != nil {
			return err
		}
		mon.RegisterSink(s)
		closers = append(closers, closerFunc(s.Close))
	}

	log.Info("starting gpu monitoring", "gpus", mgr.Count())

	if err := mon.Start(); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(log, cfg.Server.Address, mgr, mon, collector.Registry())
		go func() {
			serverErr <- srv.Start()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = err
	}

	var errs *multierror.Error
	errs = multierror.Append(errs, runErr)
	errs = multierror.Append(errs, mon.Stop())

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = multierror.Append(errs, srv.Shutdown(shutdownCtx))
		cancel()
	}
	for _, c := range closers {
		errs = multierror.Append(errs, c.Close())
	}

	return errs.ErrorOrNil()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
