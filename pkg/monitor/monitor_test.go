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

package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/manager"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/sink"
)

// recordedProvider serves fixed records and can be told to fail updates.
type recordedProvider struct {
	mu        sync.Mutex
	records   []gpu.Info
	updateErr error
}

func (p *recordedProvider) Name() string       { return "recorded" }
func (p *recordedProvider) Vendor() gpu.Vendor { return gpu.Nvidia() }

func (p *recordedProvider) DetectGPUs() ([]gpu.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]gpu.Info, len(p.records))
	for i, r := range p.records {
		out[i] = r.Clone()
	}
	return out, nil
}

func (p *recordedProvider) UpdateGPU(record *gpu.Info) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return p.updateErr
	}
	for _, r := range p.records {
		if r.Name == record.Name {
			temp := r.Temperature
			record.Temperature = temp
			return nil
		}
	}
	return gpu.ErrNotFound
}

type capturingHandler struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (h *capturingHandler) Name() string { return "capture" }

func (h *capturingHandler) HandleAlert(alert Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts = append(h.alerts, alert)
	return h.err
}

func (h *capturingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.alerts)
}

func testManager(records ...gpu.Info) (*manager.Manager, *recordedProvider) {
	provider := &recordedProvider{records: records}
	return manager.New(logr.Discard(), manager.WithProviders(provider)), provider
}

func TestEvaluateThresholdsCriticalBeatsWarning(t *testing.T) {
	thresholds := DefaultThresholds()
	records := []gpu.Info{
		gpu.NewBuilder().Name("at-critical").Temperature(85).Build(),
		gpu.NewBuilder().Name("at-warning").Temperature(75).Build(),
		gpu.NewBuilder().Name("fine").Temperature(60).Build(),
	}

	alerts := evaluateThresholds(records, thresholds, time.Now())
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %v", len(alerts), alerts)
	}
	if alerts[0].Type != AlertTemperatureCritical {
		t.Fatalf("value at critical must report only critical, got %v", alerts[0].Type)
	}
	if alerts[1].Type != AlertTemperatureWarning {
		t.Fatalf("expected warning for gpu 1, got %v", alerts[1].Type)
	}
}

func TestEvaluateThresholdsAllMetrics(t *testing.T) {
	thresholds := DefaultThresholds()
	records := []gpu.Info{
		gpu.NewBuilder().Name("busy").
			Temperature(90).
			MemoryUtil(96).
			PowerUsage(260).
			Utilization(97).
			FanSpeed(5).
			Build(),
	}

	alerts := evaluateThresholds(records, thresholds, time.Now())
	want := map[AlertType]bool{
		AlertTemperatureCritical: true,
		AlertMemoryCritical:      true,
		AlertPowerWarning:        true,
		AlertUtilizationWarning:  true,
		AlertFanSpeedLow:         true,
	}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d alerts, got %d: %v", len(want), len(alerts), alerts)
	}
	for _, a := range alerts {
		if !want[a.Type] {
			t.Fatalf("unexpected alert %v", a.Type)
		}
	}
}

func TestEvaluateThresholdsInactiveOnlyOnExplicitFalse(t *testing.T) {
	records := []gpu.Info{
		gpu.NewBuilder().Name("unknown-state").Build(),
		gpu.NewBuilder().Name("off").Active(false).Temperature(90).Build(),
	}

	alerts := evaluateThresholds(records, DefaultThresholds(), time.Now())
	if len(alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %v", len(alerts), alerts)
	}
	if alerts[0].Type != AlertGpuInactive || alerts[0].GPUIndex != 1 {
		t.Fatalf("expected GpuInactive for gpu 1, got %+v", alerts[0])
	}
	// Inactive does not suppress metric alerts for the same gpu.
	if alerts[1].Type != AlertTemperatureCritical {
		t.Fatalf("expected critical temperature alongside inactive, got %v", alerts[1].Type)
	}
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	mgr, _ := testManager(gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("rtx").Temperature(50).Active(true).Build())
	m := New(logr.Discard(), mgr, DefaultConfig().WithPollInterval(20*time.Millisecond))

	if err := m.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("second start must be a no-op success: %v", err)
	}
	if !m.IsRunning() {
		t.Fatalf("monitor must be running")
	}

	time.Sleep(210 * time.Millisecond)

	if err := m.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("second stop must be a no-op success: %v", err)
	}
	if m.IsRunning() {
		t.Fatalf("monitor must be stopped")
	}

	stats := m.Stats()
	if stats.TotalMeasurements == 0 {
		t.Fatalf("expected at least one measurement")
	}
	// A second loop would roughly double the rate; a single loop cannot
	// exceed elapsed/interval plus one.
	if stats.TotalMeasurements > 14 {
		t.Fatalf("double start must not spawn a second loop, %d measurements in ~200ms", stats.TotalMeasurements)
	}

	frozen := m.Stats().TotalMeasurements
	time.Sleep(60 * time.Millisecond)
	if m.Stats().TotalMeasurements != frozen {
		t.Fatalf("a stopped monitor must not keep measuring")
	}
}

func TestMonitorDispatchesAlertsInOrder(t *testing.T) {
	hot := gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("hot").Temperature(90).Active(true).Build()
	mgr, _ := testManager(hot)

	first := &capturingHandler{err: errors.New("webhook down")}
	second := &capturingHandler{}
	m := New(logr.Discard(), mgr, DefaultConfig().WithPollInterval(10*time.Millisecond))
	m.RegisterHandler(first)
	m.RegisterHandler(second)

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for second.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// A failing first handler must not block the second.
	if second.count() == 0 {
		t.Fatalf("second handler never received an alert")
	}
	if first.count() == 0 {
		t.Fatalf("first handler never received an alert")
	}
	if first.alerts[0].Type != AlertTemperatureCritical {
		t.Fatalf("alert = %v, want TemperatureCritical", first.alerts[0].Type)
	}
}

func TestMonitorDisabledAlertsSuppressDispatch(t *testing.T) {
	hot := gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("hot").Temperature(90).Active(true).Build()
	mgr, _ := testManager(hot)

	handler := &capturingHandler{}
	m := New(logr.Discard(), mgr, DefaultConfig().WithPollInterval(10*time.Millisecond).WithAlerts(false))
	m.RegisterHandler(handler)

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().TotalMeasurements < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	stats := m.Stats()
	if stats.TotalMeasurements == 0 {
		t.Fatalf("poll loop never completed a cycle")
	}
	if handler.count() != 0 {
		t.Fatalf("disabled alerting must not dispatch, got %d alerts", handler.count())
	}
	if stats.TotalAlerts != 0 {
		t.Fatalf("TotalAlerts = %d, want 0 with alerting off", stats.TotalAlerts)
	}

	// History keeps filling while alerting is off.
	history, err := m.History(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history.Len() == 0 {
		t.Fatalf("history must still record samples")
	}
}

func TestMonitorCollectionErrorPath(t *testing.T) {
	mgr, provider := testManager(gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("rtx").Active(true).Build())
	provider.mu.Lock()
	provider.updateErr = errors.New("driver wedged")
	provider.mu.Unlock()

	handler := &capturingHandler{}
	m := New(logr.Discard(), mgr, DefaultConfig().WithPollInterval(10*time.Millisecond))
	m.RegisterHandler(handler)

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for handler.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if handler.count() == 0 {
		t.Fatalf("expected a CollectionError alert")
	}
	if handler.alerts[0].Type != AlertCollectionError {
		t.Fatalf("alert = %v, want CollectionError", handler.alerts[0].Type)
	}
	if m.Stats().TotalErrors == 0 {
		t.Fatalf("error count must grow on failed polls")
	}
	if m.Stats().TotalMeasurements != 0 {
		t.Fatalf("failed polls must not count as measurements")
	}
}

func TestMonitorHistoryGrowsPerGPU(t *testing.T) {
	mgr, _ := testManager(
		gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("a").Temperature(50).Active(true).Build(),
		gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("b").Temperature(55).Active(true).Build(),
	)
	m := New(logr.Discard(), mgr, DefaultConfig().WithPollInterval(10*time.Millisecond))

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h, err := m.History(1); err == nil && h.Len() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	h0, err := m.History(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h0.Len() == 0 {
		t.Fatalf("history for gpu 0 must have samples")
	}
	if _, err := m.History(7); !errors.Is(err, gpu.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown history index, got %v", err)
	}
}

type capturingSink struct {
	mu      sync.Mutex
	batches [][]sink.Sample
}

func (s *capturingSink) Name() string { return "capture" }

func (s *capturingSink) WriteSamples(samples []sink.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, samples)
	return nil
}

func (s *capturingSink) Close() error { return nil }

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func TestMonitorForwardsSamplesToSinks(t *testing.T) {
	mgr, _ := testManager(gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("rtx").Temperature(50).Active(true).Build())
	captured := &capturingSink{}
	m := New(logr.Discard(), mgr, DefaultConfig().WithPollInterval(10*time.Millisecond))
	m.RegisterSink(captured)

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for captured.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if captured.count() == 0 {
		t.Fatalf("sink never received a batch")
	}
	batch := captured.batches[0]
	if len(batch) != 1 || batch[0].Record.Name != "rtx" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestMonitorLazyDefaultHandler(t *testing.T) {
	mgr, _ := testManager(gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("rtx").Active(true).Build())
	m := New(logr.Discard(), mgr, DefaultConfig())

	if err := m.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	if len(m.handlers) != 1 {
		t.Fatalf("expected the lazy log handler, have %d handlers", len(m.handlers))
	}
	if _, ok := m.handlers[0].(*LogHandler); !ok {
		t.Fatalf("default handler must be a LogHandler, got %T", m.handlers[0])
	}
}
