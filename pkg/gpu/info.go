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

package gpu

import "fmt"

// Validation bounds for reported metrics. Values outside these ranges come
// from driver glitches and are rejected rather than stored.
const (
	MaxTemperature = 1000.0
	MaxUtilization = 100.0
	MaxPowerWatts  = 1000.0
)

// Info is one GPU telemetry record. Every metric field is optional: a nil
// pointer means the provider could not read the value, which is distinct from
// a zero reading.
type Info struct {
	Vendor Vendor `json:"vendor" yaml:"vendor"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`

	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Utilization *float64 `json:"utilization,omitempty" yaml:"utilization,omitempty"`
	MemoryUtil  *float64 `json:"memoryUtil,omitempty" yaml:"memoryUtil,omitempty"`
	PowerUsage  *float64 `json:"powerUsage,omitempty" yaml:"powerUsage,omitempty"`
	PowerLimit  *float64 `json:"powerLimit,omitempty" yaml:"powerLimit,omitempty"`
	FanSpeed    *float64 `json:"fanSpeed,omitempty" yaml:"fanSpeed,omitempty"`

	MemoryTotalMB  *uint64 `json:"memoryTotalMB,omitempty" yaml:"memoryTotalMB,omitempty"`
	MemoryUsedMB   *uint64 `json:"memoryUsedMB,omitempty" yaml:"memoryUsedMB,omitempty"`
	CoreClockMHz   *uint64 `json:"coreClockMHz,omitempty" yaml:"coreClockMHz,omitempty"`
	MemoryClockMHz *uint64 `json:"memoryClockMHz,omitempty" yaml:"memoryClockMHz,omitempty"`
	MaxClockMHz    *uint64 `json:"maxClockMHz,omitempty" yaml:"maxClockMHz,omitempty"`

	DriverVersion *string `json:"driverVersion,omitempty" yaml:"driverVersion,omitempty"`

	// Active is nil when the provider cannot tell whether the device is
	// powered. Only an explicit false means inactive.
	Active *bool `json:"active,omitempty" yaml:"active,omitempty"`
}

// UnknownInfo returns the placeholder record used when detection finds no
// devices.
func UnknownInfo() Info {
	return Info{Vendor: Unknown()}
}

// Clone returns a deep copy of the record.
func (i Info) Clone() Info {
	out := i
	out.Temperature = cloneFloat(i.Temperature)
	out.Utilization = cloneFloat(i.Utilization)
	out.MemoryUtil = cloneFloat(i.MemoryUtil)
	out.PowerUsage = cloneFloat(i.PowerUsage)
	out.PowerLimit = cloneFloat(i.PowerLimit)
	out.FanSpeed = cloneFloat(i.FanSpeed)
	out.MemoryTotalMB = cloneUint(i.MemoryTotalMB)
	out.MemoryUsedMB = cloneUint(i.MemoryUsedMB)
	out.CoreClockMHz = cloneUint(i.CoreClockMHz)
	out.MemoryClockMHz = cloneUint(i.MemoryClockMHz)
	out.MaxClockMHz = cloneUint(i.MaxClockMHz)
	if i.DriverVersion != nil {
		v := *i.DriverVersion
		out.DriverVersion = &v
	}
	if i.Active != nil {
		v := *i.Active
		out.Active = &v
	}
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneUint(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// IsActive reports whether the device is known to be active. A missing Active
// flag counts as inactive.
func (i Info) IsActive() bool {
	return i.Active != nil && *i.Active
}

// Validate checks metric values against physical bounds. It reports the first
// violation found.
func (i Info) Validate() error {
	if err := checkRange("temperature", i.Temperature, MaxTemperature); err != nil {
		return err
	}
	if err := checkRange("utilization", i.Utilization, MaxUtilization); err != nil {
		return err
	}
	if err := checkRange("memory utilization", i.MemoryUtil, MaxUtilization); err != nil {
		return err
	}
	if err := checkRange("power usage", i.PowerUsage, MaxPowerWatts); err != nil {
		return err
	}
	if err := checkRange("power limit", i.PowerLimit, MaxPowerWatts); err != nil {
		return err
	}
	if err := checkRange("fan speed", i.FanSpeed, MaxUtilization); err != nil {
		return err
	}
	return nil
}

// IsValid reports whether Validate succeeds.
func (i Info) IsValid() bool { return i.Validate() == nil }

func checkRange(field string, v *float64, max float64) error {
	if v == nil {
		return nil
	}
	if *v < 0 {
		return fmt.Errorf("%s is negative: %v", field, *v)
	}
	if *v > max {
		return fmt.Errorf("%s exceeds %v: %v", field, max, *v)
	}
	return nil
}
