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
	"fmt"
	"time"

	"github.com/go-logr/logr"
)

// AlertType names the metric/severity pair an alert reports.
type AlertType string

const (
	AlertTemperatureWarning  AlertType = "TemperatureWarning"
	AlertTemperatureCritical AlertType = "TemperatureCritical"
	AlertMemoryWarning       AlertType = "MemoryWarning"
	AlertMemoryCritical      AlertType = "MemoryCritical"
	AlertPowerWarning        AlertType = "PowerWarning"
	AlertPowerCritical       AlertType = "PowerCritical"
	AlertUtilizationWarning  AlertType = "UtilizationWarning"
	AlertFanSpeedLow         AlertType = "FanSpeedLow"
	AlertGpuInactive         AlertType = "GpuInactive"
	AlertCollectionError     AlertType = "CollectionError"
)

// Severity ranks alerts for handlers that triage.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Severity returns the tier an alert type belongs to.
func (t AlertType) Severity() Severity {
	switch t {
	case AlertTemperatureCritical, AlertMemoryCritical, AlertPowerCritical, AlertGpuInactive, AlertCollectionError:
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// Alert is produced during one poll cycle and dispatched to every handler.
// Alerts are not retained; only aggregate counts survive in Stats.
type Alert struct {
	Type     AlertType `json:"type"`
	GPUIndex int       `json:"gpuIndex"`
	GPUName  string    `json:"gpuName,omitempty"`

	// Value is the reading that tripped the threshold; meaningless for
	// GpuInactive and CollectionError.
	Value float64 `json:"value,omitempty"`

	// Message carries the error text for CollectionError.
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

func (a Alert) String() string {
	switch a.Type {
	case AlertGpuInactive:
		return fmt.Sprintf("gpu %d (%s): inactive", a.GPUIndex, a.GPUName)
	case AlertCollectionError:
		return fmt.Sprintf("collection failed: %s", a.Message)
	default:
		return fmt.Sprintf("gpu %d (%s): %s at %.1f", a.GPUIndex, a.GPUName, a.Type, a.Value)
	}
}

// AlertHandler receives alerts from the Monitor's poll loop. Handlers run on
// the monitor goroutine with no internal lock held; a slow handler delays
// only the next poll.
type AlertHandler interface {
	Name() string
	HandleAlert(alert Alert) error
}

// LogHandler writes alerts to a logger. It is the default handler when a
// Monitor starts with none registered.
type LogHandler struct {
	log logr.Logger
}

// NewLogHandler returns a handler logging through log.
func NewLogHandler(log logr.Logger) *LogHandler {
	return &LogHandler{log: log.WithName("alert-log")}
}

func (h *LogHandler) Name() string { return "log" }

func (h *LogHandler) HandleAlert(alert Alert) error {
	h.log.Info(alert.String(),
		"type", string(alert.Type),
		"severity", string(alert.Type.Severity()),
		"gpu", alert.GPUIndex,
	)
	return nil
}
