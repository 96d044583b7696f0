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

package manager

import "github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"

// Statistics is a one-pass aggregation over the tracked GPUs.
type Statistics struct {
	TotalGPUs   int                `json:"totalGPUs"`
	ActiveGPUs  int                `json:"activeGPUs"`
	VendorCount map[gpu.Family]int `json:"vendorCount"`

	// AverageTemperature averages only GPUs that reported a temperature;
	// nil when none did.
	AverageTemperature *float64 `json:"averageTemperature,omitempty"`

	// TotalPowerUsage sums the power draw of GPUs that reported one.
	TotalPowerUsage float64 `json:"totalPowerUsage"`
}

// Statistics aggregates vendor counts and temperature/power totals over the
// current GPU list.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Statistics{
		TotalGPUs:   len(m.gpus),
		VendorCount: make(map[gpu.Family]int),
	}

	var tempSum float64
	var tempCount int
	for _, g := range m.gpus {
		stats.VendorCount[g.Vendor.Family]++
		if g.IsActive() {
			stats.ActiveGPUs++
		}
		if g.Temperature != nil {
			tempSum += *g.Temperature
			tempCount++
		}
		if g.PowerUsage != nil {
			stats.TotalPowerUsage += *g.PowerUsage
		}
	}
	if tempCount > 0 {
		avg := tempSum / float64(tempCount)
		stats.AverageTemperature = &avg
	}
	return stats
}
