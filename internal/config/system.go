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

// Package config loads the daemon configuration file and fills defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/monitor"
)

// Duration decodes YAML values like "5s" or plain nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		*d = Duration(time.Duration(v))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// System is the daemon-wide configuration loaded from the config file.
type System struct {
	Monitor MonitorSettings `json:"monitor" yaml:"monitor"`
	Cache   CacheSettings   `json:"cache" yaml:"cache"`
	Server  ServerSettings  `json:"server" yaml:"server"`
	Sinks   SinkSettings    `json:"sinks" yaml:"sinks"`
	Alerts  AlertSettings   `json:"alerts" yaml:"alerts"`
}

// MonitorSettings tunes the poll loop.
type MonitorSettings struct {
	PollInterval Duration           `json:"pollInterval" yaml:"pollInterval"`
	HistorySize  int                `json:"historySize" yaml:"historySize"`
	EnableAlerts bool               `json:"enableAlerts" yaml:"enableAlerts"`
	LogMetrics   bool               `json:"logMetrics" yaml:"logMetrics"`
	Thresholds   monitor.Thresholds `json:"thresholds" yaml:"thresholds"`
}

// CacheSettings tunes the Manager's record cache.
type CacheSettings struct {
	TTL        Duration `json:"ttl" yaml:"ttl"`
	MaxEntries int      `json:"maxEntries" yaml:"maxEntries"`
}

// ServerSettings controls the HTTP API.
type ServerSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Address string `json:"address" yaml:"address"`
}

// SinkSettings enables sample sinks.
type SinkSettings struct {
	ClickHouse ClickHouseSettings `json:"clickhouse" yaml:"clickhouse"`
}

// ClickHouseSettings configures the ClickHouse sample sink.
type ClickHouseSettings struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Addr     []string `json:"addr" yaml:"addr"`
	Database string   `json:"database" yaml:"database"`
	Username string   `json:"username" yaml:"username"`
	Password string   `json:"password" yaml:"password"`
}

// AlertSettings enables alert handlers beyond the default logger.
type AlertSettings struct {
	Slack SlackSettings `json:"slack" yaml:"slack"`
	Kafka KafkaSettings `json:"kafka" yaml:"kafka"`
}

// SlackSettings configures the Slack webhook handler.
type SlackSettings struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	WebhookURL string   `json:"webhookURL" yaml:"webhookURL"`
	Channel    string   `json:"channel" yaml:"channel"`
	Cooldown   Duration `json:"cooldown" yaml:"cooldown"`
}

// KafkaSettings configures the Kafka alert publisher.
type KafkaSettings struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

const (
	defaultPollInterval = Duration(time.Second)
	defaultHistorySize  = 100
	defaultCacheTTL     = Duration(5 * time.Second)
	defaultCacheEntries = 64
	defaultListenAddr   = ":8080"
	defaultKafkaTopic   = "gpu-alerts"
)

// DefaultSystem returns a System populated with safe defaults.
func DefaultSystem() System {
	return System{
		Monitor: MonitorSettings{
			PollInterval: defaultPollInterval,
			HistorySize:  defaultHistorySize,
			EnableAlerts: true,
			Thresholds:   monitor.DefaultThresholds(),
		},
		Cache: CacheSettings{
			TTL:        defaultCacheTTL,
			MaxEntries: defaultCacheEntries,
		},
		Server: ServerSettings{
			Enabled: true,
			Address: defaultListenAddr,
		},
		Alerts: AlertSettings{
			Kafka: KafkaSettings{Topic: defaultKafkaTopic},
		},
	}
}

// LoadFile reads the YAML configuration file and merges it with defaults.
func LoadFile(path string) (System, error) {
	cfg := DefaultSystem()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}

	normalizeMonitor(&cfg.Monitor)
	normalizeCache(&cfg.Cache)
	normalizeServer(&cfg.Server)
	normalizeAlerts(&cfg.Alerts)

	return cfg, nil
}

// MonitorConfig converts the settings into the monitor package's Config.
func (s MonitorSettings) MonitorConfig() monitor.Config {
	return monitor.DefaultConfig().
		WithPollInterval(s.PollInterval.Std()).
		WithHistorySize(s.HistorySize).
		WithThresholds(s.Thresholds).
		WithAlerts(s.EnableAlerts).
		WithLogMetrics(s.LogMetrics)
}

func normalizeMonitor(cfg *MonitorSettings) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
}

func normalizeCache(cfg *CacheSettings) {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	if cfg.MaxEntries < 0 {
		cfg.MaxEntries = 0
	}
}

func normalizeServer(cfg *ServerSettings) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		cfg.Address = defaultListenAddr
	}
}

func normalizeAlerts(cfg *AlertSettings) {
	cfg.Slack.WebhookURL = strings.TrimSpace(cfg.Slack.WebhookURL)
	cfg.Slack.Channel = strings.TrimSpace(cfg.Slack.Channel)

	cfg.Kafka.Topic = strings.TrimSpace(cfg.Kafka.Topic)
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = defaultKafkaTopic
	}
	brokers := make([]string, 0, len(cfg.Kafka.Brokers))
	for _, b := range cfg.Kafka.Brokers {
		b = strings.TrimSpace(b)
		if b == "" {
			continue
		}
		brokers = append(brokers, b)
	}
	cfg.Kafka.Brokers = brokers
}
