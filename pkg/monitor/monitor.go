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

// Package monitor runs the background polling loop, evaluates thresholds and
// dispatches alerts.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/manager"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/sink"
)

const (
	failureThreshold = 10
	failureCooldown  = 10 * time.Second
)

// Monitor polls a Manager on a fixed interval, appends to per-GPU History,
// evaluates Thresholds and dispatches Alerts. One background goroutine per
// Monitor, spawned by Start.
type Monitor struct {
	log     logr.Logger
	manager *manager.Manager
	config  Config

	handlersMu sync.Mutex
	handlers   []AlertHandler

	sinksMu sync.Mutex
	sinks   []sink.Sink

	historyMu sync.Mutex
	histories []*History

	statsMu sync.Mutex
	stats   Stats

	stateMu sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a stopped Monitor over mgr.
func New(log logr.Logger, mgr *manager.Manager, config Config) *Monitor {
	return &Monitor{
		log:     log.WithName("gpu-monitor"),
		manager: mgr,
		config:  config.normalized(),
	}
}

// RegisterHandler appends a handler; dispatch follows registration order.
func (m *Monitor) RegisterHandler(h AlertHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, h)
}

// RegisterSink appends a sample sink.
func (m *Monitor) RegisterSink(s sink.Sink) {
	m.sinksMu.Lock()
	defer m.sinksMu.Unlock()
	m.sinks = append(m.sinks, s)
}

// Start spawns the poll loop. Starting a running Monitor is a no-op success.
// When no handler is registered a LogHandler is added so alerts are never
// silently dropped.
func (m *Monitor) Start() error {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.running {
		return nil
	}

	m.handlersMu.Lock()
	if len(m.handlers) == 0 {
		m.handlers = append(m.handlers, NewLogHandler(m.log))
	}
	m.handlersMu.Unlock()

	m.statsMu.Lock()
	if m.stats.StartTime.IsZero() {
		m.stats.StartTime = time.Now()
	}
	m.statsMu.Unlock()

	m.stopCh = make(chan struct{})
	m.running = true
	m.wg.Add(1)
	go m.run(m.stopCh)

	m.log.Info("monitor started", "pollInterval", m.config.PollInterval.String())
	return nil
}

// Stop signals the poll loop and waits for it to exit. Stopping a stopped
// Monitor is a no-op success.
func (m *Monitor) Stop() error {
	m.stateMu.Lock()
	if !m.running {
		m.stateMu.Unlock()
		return nil
	}
	close(m.stopCh)
	m.running = false
	m.stateMu.Unlock()

	m.wg.Wait()
	m.log.Info("monitor stopped")
	return nil
}

// IsRunning reports whether the poll loop is active.
func (m *Monitor) IsRunning() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.running
}

// Stats returns a copy of the aggregate counters.
func (m *Monitor) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// History returns a snapshot of one GPU's sample series.
func (m *Monitor) History(index int) (History, error) {
	m.historyMu.Lock()
	defer m.historyMu.Unlock()
	if index < 0 || index >= len(m.histories) {
		return History{}, fmt.Errorf("history for gpu %d: %w", index, gpu.ErrNotFound)
	}
	return m.histories[index].clone(), nil
}

func (m *Monitor) run(stopCh <-chan struct{}) {
	defer m.wg.Done()

	consecutiveFailures := 0
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		start := time.Now()
		err := m.manager.RefreshAll()
		elapsed := time.Since(start)

		if err != nil {
			consecutiveFailures++
			m.log.V(1).Info("collection failed", "error", err.Error(), "consecutive", consecutiveFailures)

			dispatched := m.dispatch([]Alert{{
				Type:    AlertCollectionError,
				Message: err.Error(),
				Time:    time.Now(),
			}})

			m.statsMu.Lock()
			m.stats.TotalErrors++
			m.stats.TotalAlerts += dispatched
			m.statsMu.Unlock()

			if consecutiveFailures >= failureThreshold {
				m.log.Info("too many consecutive collection failures, backing off",
					"failures", consecutiveFailures, "cooldown", failureCooldown.String())
				if !m.sleep(stopCh, failureCooldown) {
					return
				}
			}
		} else {
			consecutiveFailures = 0
			m.collect(elapsed)
		}

		if !m.sleep(stopCh, m.config.PollInterval) {
			return
		}
	}
}

// collect runs the success path of one cycle: history append, then threshold
// evaluation, then stats, then sinks.
func (m *Monitor) collect(elapsed time.Duration) {
	records := m.manager.All()
	now := time.Now()

	m.historyMu.Lock()
	for len(m.histories) < len(records) {
		m.histories = append(m.histories, newHistory(m.config.HistorySize))
	}
	for i, record := range records {
		m.histories[i].append(record, now)
	}
	m.historyMu.Unlock()

	var dispatched uint64
	if m.config.EnableAlerts {
		alerts := evaluateThresholds(records, m.config.Thresholds, now)
		dispatched = m.dispatch(alerts)
	}

	if m.config.LogMetrics {
		for i, record := range records {
			m.log.Info("gpu metrics",
				"index", i,
				"name", record.Name,
				"temperature", floatOrNil(record.Temperature),
				"utilization", floatOrNil(record.Utilization),
				"power", floatOrNil(record.PowerUsage),
			)
		}
	}

	m.statsMu.Lock()
	m.stats.recordCollection(elapsed, now)
	m.stats.TotalAlerts += dispatched
	m.statsMu.Unlock()

	m.writeSinks(records, now)
}

// dispatch sends alerts to every handler in registration order. A failing
// handler is logged and skipped; it never stops dispatch to the rest.
func (m *Monitor) dispatch(alerts []Alert) uint64 {
	if len(alerts) == 0 {
		return 0
	}

	m.handlersMu.Lock()
	handlers := make([]AlertHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.handlersMu.Unlock()

	for _, alert := range alerts {
		for _, h := range handlers {
			if err := h.HandleAlert(alert); err != nil {
				m.log.Error(err, "alert handler failed", "handler", h.Name(), "alert", string(alert.Type))
			}
		}
	}
	return uint64(len(alerts))
}

func (m *Monitor) writeSinks(records []gpu.Info, now time.Time) {
	m.sinksMu.Lock()
	sinks := make([]sink.Sink, len(m.sinks))
	copy(sinks, m.sinks)
	m.sinksMu.Unlock()

	if len(sinks) == 0 {
		return
	}

	samples := make([]sink.Sample, len(records))
	for i, record := range records {
		samples[i] = sink.Sample{Time: now, GPUIndex: i, Record: record}
	}
	for _, s := range sinks {
		if err := s.WriteSamples(samples); err != nil {
			m.log.Error(err, "sample sink failed", "sink", s.Name())
		}
	}
}

// sleep waits for d or until stop. It reports false when stopped.
func (m *Monitor) sleep(stopCh <-chan struct{}, d time.Duration) bool {
	select {
	case <-stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

// evaluateThresholds classifies every metric of every record. Critical is
// checked before warning, so a reading at or above critical produces only
// the critical alert. An explicit Active == false produces GpuInactive in
// addition to any metric alerts.
func evaluateThresholds(records []gpu.Info, t Thresholds, now time.Time) []Alert {
	var alerts []Alert
	add := func(index int, name string, typ AlertType, value float64) {
		alerts = append(alerts, Alert{Type: typ, GPUIndex: index, GPUName: name, Value: value, Time: now})
	}

	for i, record := range records {
		if record.Active != nil && !*record.Active {
			add(i, record.Name, AlertGpuInactive, 0)
		}

		if v := record.Temperature; v != nil {
			switch {
			case *v >= t.TemperatureCritical:
				add(i, record.Name, AlertTemperatureCritical, *v)
			case *v >= t.TemperatureWarning:
				add(i, record.Name, AlertTemperatureWarning, *v)
			}
		}

		if v := record.MemoryUtil; v != nil {
			switch {
			case *v >= t.MemoryCritical:
				add(i, record.Name, AlertMemoryCritical, *v)
			case *v >= t.MemoryWarning:
				add(i, record.Name, AlertMemoryWarning, *v)
			}
		}

		if v := record.PowerUsage; v != nil {
			switch {
			case *v >= t.PowerCritical:
				add(i, record.Name, AlertPowerCritical, *v)
			case *v >= t.PowerWarning:
				add(i, record.Name, AlertPowerWarning, *v)
			}
		}

		if v := record.Utilization; v != nil && *v >= t.UtilizationWarning {
			add(i, record.Name, AlertUtilizationWarning, *v)
		}

		if v := record.FanSpeed; v != nil && *v < t.FanSpeedMin {
			add(i, record.Name, AlertFanSpeedLow, *v)
		}
	}
	return alerts
}

func floatOrNil(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
