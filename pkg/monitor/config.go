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

import "time"

const (
	defaultPollInterval = time.Second
	defaultHistorySize  = 100
)

// Thresholds are the alerting bounds, checked per GPU per poll. Temperature,
// memory and power carry a warning/critical pair; utilization has only a
// warning tier; fan speed alerts when it drops below the minimum.
type Thresholds struct {
	TemperatureWarning  float64 `json:"temperatureWarning" yaml:"temperatureWarning"`
	TemperatureCritical float64 `json:"temperatureCritical" yaml:"temperatureCritical"`

	MemoryWarning  float64 `json:"memoryWarning" yaml:"memoryWarning"`
	MemoryCritical float64 `json:"memoryCritical" yaml:"memoryCritical"`

	PowerWarning  float64 `json:"powerWarning" yaml:"powerWarning"`
	PowerCritical float64 `json:"powerCritical" yaml:"powerCritical"`

	UtilizationWarning float64 `json:"utilizationWarning" yaml:"utilizationWarning"`

	FanSpeedMin float64 `json:"fanSpeedMin" yaml:"fanSpeedMin"`
}

// DefaultThresholds returns the stock alerting bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TemperatureWarning:  75,
		TemperatureCritical: 85,
		MemoryWarning:       80,
		MemoryCritical:      95,
		PowerWarning:        250,
		PowerCritical:       300,
		UtilizationWarning:  95,
		FanSpeedMin:         10,
	}
}

// Config controls the poll loop.
type Config struct {
	PollInterval time.Duration `json:"pollInterval" yaml:"pollInterval"`
	HistorySize  int           `json:"historySize" yaml:"historySize"`
	Thresholds   Thresholds    `json:"thresholds" yaml:"thresholds"`

	// EnableAlerts gates threshold evaluation and dispatch. History, stats
	// and sinks keep running when it is off.
	EnableAlerts bool `json:"enableAlerts" yaml:"enableAlerts"`

	// LogMetrics emits one log line per GPU per successful poll.
	LogMetrics bool `json:"logMetrics" yaml:"logMetrics"`
}

// DefaultConfig returns a config with one-second polling, stock thresholds
// and alerting on.
func DefaultConfig() Config {
	return Config{
		PollInterval: defaultPollInterval,
		HistorySize:  defaultHistorySize,
		Thresholds:   DefaultThresholds(),
		EnableAlerts: true,
	}
}

// WithPollInterval returns a copy with the poll interval replaced.
func (c Config) WithPollInterval(d time.Duration) Config {
	c.PollInterval = d
	return c
}

// WithHistorySize returns a copy with the per-GPU history capacity replaced.
func (c Config) WithHistorySize(n int) Config {
	c.HistorySize = n
	return c
}

// WithThresholds returns a copy with the alerting bounds replaced.
func (c Config) WithThresholds(t Thresholds) Config {
	c.Thresholds = t
	return c
}

// WithAlerts returns a copy with threshold alerting toggled.
func (c Config) WithAlerts(enabled bool) Config {
	c.EnableAlerts = enabled
	return c
}

// WithLogMetrics returns a copy with per-poll metric logging toggled.
func (c Config) WithLogMetrics(enabled bool) Config {
	c.LogMetrics = enabled
	return c
}

// normalized fills zero fields with defaults.
func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	return c
}
