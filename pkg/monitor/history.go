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
	"time"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

// History holds one GPU's recent samples as parallel bounded series. All
// series always have equal length; when capacity is reached the oldest sample
// drops from every series together.
type History struct {
	capacity int

	Timestamps   []time.Time `json:"timestamps"`
	Temperature  []*float64  `json:"temperature"`
	Utilization  []*float64  `json:"utilization"`
	MemoryUtil   []*float64  `json:"memoryUtil"`
	PowerUsage   []*float64  `json:"powerUsage"`
	CoreClockMHz []*uint64   `json:"coreClockMHz"`
	FanSpeed     []*float64  `json:"fanSpeed"`
}

func newHistory(capacity int) *History {
	return &History{capacity: capacity}
}

// append records one sample, evicting the oldest when full. now is passed in
// so one poll cycle stamps every GPU identically.
func (h *History) append(record gpu.Info, now time.Time) {
	if h.capacity > 0 && len(h.Timestamps) >= h.capacity {
		h.Timestamps = h.Timestamps[1:]
		h.Temperature = h.Temperature[1:]
		h.Utilization = h.Utilization[1:]
		h.MemoryUtil = h.MemoryUtil[1:]
		h.PowerUsage = h.PowerUsage[1:]
		h.CoreClockMHz = h.CoreClockMHz[1:]
		h.FanSpeed = h.FanSpeed[1:]
	}
	h.Timestamps = append(h.Timestamps, now)
	h.Temperature = append(h.Temperature, cloneFloat(record.Temperature))
	h.Utilization = append(h.Utilization, cloneFloat(record.Utilization))
	h.MemoryUtil = append(h.MemoryUtil, cloneFloat(record.MemoryUtil))
	h.PowerUsage = append(h.PowerUsage, cloneFloat(record.PowerUsage))
	h.CoreClockMHz = append(h.CoreClockMHz, cloneUint(record.CoreClockMHz))
	h.FanSpeed = append(h.FanSpeed, cloneFloat(record.FanSpeed))
}

// Len returns the number of stored samples.
func (h *History) Len() int { return len(h.Timestamps) }

// AverageTemperature averages the temperature samples recorded within window
// of now. It returns nil when no sample with a temperature falls inside the
// window.
func (h *History) AverageTemperature(window time.Duration) *float64 {
	return h.foldTemperature(window, time.Now())
}

// MaxTemperature returns the highest temperature recorded within window of
// now, or nil when the window is empty.
func (h *History) MaxTemperature(window time.Duration) *float64 {
	return h.maxTemperature(window, time.Now())
}

func (h *History) foldTemperature(window time.Duration, now time.Time) *float64 {
	var sum float64
	var count int
	for i, ts := range h.Timestamps {
		if now.Sub(ts) > window || h.Temperature[i] == nil {
			continue
		}
		sum += *h.Temperature[i]
		count++
	}
	if count == 0 {
		return nil
	}
	avg := sum / float64(count)
	return &avg
}

func (h *History) maxTemperature(window time.Duration, now time.Time) *float64 {
	var max *float64
	for i, ts := range h.Timestamps {
		if now.Sub(ts) > window || h.Temperature[i] == nil {
			continue
		}
		if max == nil || *h.Temperature[i] > *max {
			v := *h.Temperature[i]
			max = &v
		}
	}
	return max
}

// clone returns a deep copy so callers can hold a snapshot without racing
// the poll loop.
func (h *History) clone() History {
	out := History{capacity: h.capacity}
	out.Timestamps = append(out.Timestamps, h.Timestamps...)
	out.Temperature = cloneFloatSeries(h.Temperature)
	out.Utilization = cloneFloatSeries(h.Utilization)
	out.MemoryUtil = cloneFloatSeries(h.MemoryUtil)
	out.PowerUsage = cloneFloatSeries(h.PowerUsage)
	out.CoreClockMHz = cloneUintSeries(h.CoreClockMHz)
	out.FanSpeed = cloneFloatSeries(h.FanSpeed)
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

func cloneFloatSeries(in []*float64) []*float64 {
	out := make([]*float64, len(in))
	for i, p := range in {
		out[i] = cloneFloat(p)
	}
	return out
}

func cloneUintSeries(in []*uint64) []*uint64 {
	out := make([]*uint64, len(in))
	for i, p := range in {
		out[i] = cloneUint(p)
	}
	return out
}
