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

package providers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

// Intel reads telemetry from the i915/xe sysfs interface. Discrete cards are
// told apart from integrated ones by the presence of dedicated VRAM counters.
type Intel struct{}

func NewIntel() *Intel { return &Intel{} }

func (p *Intel) Name() string       { return "intel-sysfs" }
func (p *Intel) Vendor() gpu.Vendor { return gpu.Intel(gpu.IntelUnspecified) }

func (p *Intel) DetectGPUs() ([]gpu.Info, error) {
	cards, err := drmCards(pciVendorIntel)
	if err != nil {
		return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: err}
	}

	var infos []gpu.Info
	for _, card := range cards {
		infos = append(infos, readIntelCard(card))
	}
	return infos, nil
}

func (p *Intel) UpdateGPU(record *gpu.Info) error {
	infos, err := p.DetectGPUs()
	if err != nil {
		return err
	}
	for _, fresh := range infos {
		if fresh.Name == record.Name {
			copyMetrics(record, fresh)
			return nil
		}
	}
	return fmt.Errorf("gpu %q: %w", record.Name, gpu.ErrNotFound)
}

func readIntelCard(card string) gpu.Info {
	device := filepath.Join(card, "device")

	kind := gpu.IntelIntegrated
	total, totalOK := sysfsUint(filepath.Join(device, "mem_info_vram_total"))
	if totalOK {
		kind = gpu.IntelDiscrete
	}

	b := gpu.NewBuilder().Vendor(gpu.Intel(kind)).Active(true).Name(intelCardName(device))

	if v, ok := sysfsUint(filepath.Join(card, "gt_cur_freq_mhz")); ok {
		b.CoreClockMHz(v)
	}
	if v, ok := sysfsUint(filepath.Join(card, "gt_max_freq_mhz")); ok {
		b.MaxClockMHz(v)
	}

	if totalOK {
		b.MemoryTotalMB(total / (1024 * 1024))
		if used, ok := sysfsUint(filepath.Join(device, "mem_info_vram_used")); ok {
			b.MemoryUsedMB(used / (1024 * 1024))
			if total > 0 {
				b.MemoryUtil(float64(used) / float64(total) * 100)
			}
		}
	}

	if hwmon, ok := hwmonDir(device); ok {
		if v, ok := sysfsUint(filepath.Join(hwmon, "temp1_input")); ok {
			b.Temperature(float64(v) / 1000)
		}
		if v, ok := sysfsUint(filepath.Join(hwmon, "power1_max")); ok {
			b.PowerLimit(float64(v) / 1e6)
		}
	}

	return b.Build()
}

func intelCardName(device string) string {
	if data, err := readSysfsFile(filepath.Join(device, "label")); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	if data, err := readSysfsFile(filepath.Join(device, "device")); err == nil {
		return "Intel GPU " + strings.TrimSpace(string(data))
	}
	return "Intel GPU"
}
