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

// Package metrics exposes telemetry as Prometheus collectors. The Collector
// plugs into the monitor both as a sample sink and as an alert handler.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/monitor"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/sink"
)

// Collector owns the Prometheus registry and the GPU metric families.
type Collector struct {
	registry *prometheus.Registry

	temperature *prometheus.GaugeVec
	utilization *prometheus.GaugeVec
	memoryUtil  *prometheus.GaugeVec
	powerUsage  *prometheus.GaugeVec
	fanSpeed    *prometheus.GaugeVec

	samplesTotal prometheus.Counter
	alertsTotal  *prometheus.CounterVec
}

// NewCollector builds a Collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	gpuLabels := []string{"gpu", "name", "vendor"}
	c.temperature = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_temperature_celsius",
		Help: "GPU temperature in degrees Celsius.",
	}, gpuLabels)
	c.utilization = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_utilization_percent",
		Help: "GPU core utilization percentage.",
	}, gpuLabels)
	c.memoryUtil = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_memory_utilization_percent",
		Help: "GPU memory utilization percentage.",
	}, gpuLabels)
	c.powerUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_power_usage_watts",
		Help: "GPU power draw in watts.",
	}, gpuLabels)
	c.fanSpeed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpu_fan_speed_percent",
		Help: "GPU fan speed percentage.",
	}, gpuLabels)
	c.samplesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gpu_samples_total",
		Help: "Number of samples recorded across all GPUs.",
	})
	c.alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gpu_alerts_total",
		Help: "Alerts dispatched, by type and severity.",
	}, []string{"type", "severity"})

	c.registry.MustRegister(
		c.temperature, c.utilization, c.memoryUtil, c.powerUsage, c.fanSpeed,
		c.samplesTotal, c.alertsTotal,
	)
	return c
}

// Registry returns the registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Name() string { return "prometheus" }

// WriteSamples updates the per-GPU gauges; missing readings leave the
// previous value in place.
func (c *Collector) WriteSamples(samples []sink.Sample) error {
	for _, s := range samples {
		labels := prometheus.Labels{
			"gpu":    strconv.Itoa(s.GPUIndex),
			"name":   s.Record.Name,
			"vendor": s.Record.Vendor.String(),
		}
		if v := s.Record.Temperature; v != nil {
			c.temperature.With(labels).Set(*v)
		}
		if v := s.Record.Utilization; v != nil {
			c.utilization.With(labels).Set(*v)
		}
		if v := s.Record.MemoryUtil; v != nil {
			c.memoryUtil.With(labels).Set(*v)
		}
		if v := s.Record.PowerUsage; v != nil {
			c.powerUsage.With(labels).Set(*v)
		}
		if v := s.Record.FanSpeed; v != nil {
			c.fanSpeed.With(labels).Set(*v)
		}
		c.samplesTotal.Inc()
	}
	return nil
}

// Close implements sink.Sink; the registry has nothing to release.
func (c *Collector) Close() error { return nil }

// HandleAlert counts dispatched alerts by type and severity.
func (c *Collector) HandleAlert(alert monitor.Alert) error {
	c.alertsTotal.WithLabelValues(string(alert.Type), string(alert.Type.Severity())).Inc()
	return nil
}
