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

// Package notifier ships alert handlers that deliver to external systems.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/monitor"
)

const (
	slackTimeout         = 10 * time.Second
	defaultAlertCooldown = 5 * time.Minute
)

type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Text        string            `json:"text,omitempty"`
	Username    string            `json:"username,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Fallback  string       `json:"fallback,omitempty"`
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

type slackField struct {
	Title string `json:"title,omitempty"`
	Value string `json:"value,omitempty"`
	Short bool   `json:"short,omitempty"`
}

// Slack posts alerts to a Slack incoming webhook. Repeated alerts for the
// same GPU and alert type are suppressed for a cooldown period so a
// constantly hot GPU does not flood the channel.
type Slack struct {
	webhookURL string
	channel    string
	client     *http.Client

	cooldown time.Duration
	mu       sync.Mutex
	lastSent map[string]time.Time
}

// SlackOption tweaks a Slack handler.
type SlackOption func(*Slack)

// WithSlackCooldown overrides the per-alert suppression window. Zero
// disables suppression.
func WithSlackCooldown(d time.Duration) SlackOption {
	return func(s *Slack) { s.cooldown = d }
}

// WithSlackHTTPClient substitutes the HTTP client, mainly for tests.
func WithSlackHTTPClient(c *http.Client) SlackOption {
	return func(s *Slack) { s.client = c }
}

// NewSlack builds a Slack handler for the given webhook.
func NewSlack(webhookURL, channel string, opts ...SlackOption) (*Slack, error) {
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL cannot be empty")
	}
	s := &Slack{
		webhookURL: webhookURL,
		channel:    channel,
		client:     &http.Client{Timeout: slackTimeout},
		cooldown:   defaultAlertCooldown,
		lastSent:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) HandleAlert(alert monitor.Alert) error {
	if s.suppressed(alert) {
		return nil
	}

	msg := slackMessage{
		Channel:  s.channel,
		Username: "GPU Telemetry",
		Attachments: []slackAttachment{{
			Fallback:  alert.String(),
			Color:     severityColor(alert.Type.Severity()),
			Title:     string(alert.Type),
			Text:      alert.String(),
			Timestamp: alert.Time.Unix(),
			Fields: []slackField{
				{Title: "GPU", Value: fmt.Sprintf("%d (%s)", alert.GPUIndex, alert.GPUName), Short: true},
				{Title: "Value", Value: fmt.Sprintf("%.2f", alert.Value), Short: true},
				{Title: "Severity", Value: string(alert.Type.Severity()), Short: true},
			},
		}},
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	resp, err := s.client.Post(s.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack responded %s", resp.Status)
	}
	return nil
}

func (s *Slack) suppressed(alert monitor.Alert) bool {
	if s.cooldown <= 0 {
		return false
	}
	key := fmt.Sprintf("%d/%s", alert.GPUIndex, alert.Type)

	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSent[key]; ok && time.Since(last) < s.cooldown {
		return true
	}
	s.lastSent[key] = time.Now()
	return false
}

func severityColor(s monitor.Severity) string {
	if s == monitor.SeverityCritical {
		return "#FF0000"
	}
	return "#FFA500"
}
