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
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

const (
	pciVendorAMD   = "0x1002"
	pciVendorIntel = "0x8086"
)

// Swapped out by tests.
var (
	drmRoot       = "/sys/class/drm"
	readSysfsFile = os.ReadFile
)

// Amd reads telemetry from the amdgpu sysfs interface. No ROCm or ADL
// linkage; a host without the driver simply exposes no matching cards.
type Amd struct{}

func NewAmd() *Amd { return &Amd{} }

func (p *Amd) Name() string       { return "amdgpu-sysfs" }
func (p *Amd) Vendor() gpu.Vendor { return gpu.Amd() }

func (p *Amd) DetectGPUs() ([]gpu.Info, error) {
	cards, err := drmCards(pciVendorAMD)
	if err != nil {
		return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: err}
	}

	var infos []gpu.Info
	for _, card := range cards {
		infos = append(infos, readAmdCard(card))
	}
	return infos, nil
}

func (p *Amd) UpdateGPU(record *gpu.Info) error {
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

func readAmdCard(card string) gpu.Info {
	device := filepath.Join(card, "device")
	b := gpu.NewBuilder().Vendor(gpu.Amd()).Active(true).Name(amdCardName(device))

	if hwmon, ok := hwmonDir(device); ok {
		// temp1_input is millidegrees Celsius.
		if v, ok := sysfsUint(filepath.Join(hwmon, "temp1_input")); ok {
			b.Temperature(float64(v) / 1000)
		}
		// power1_average is microwatts.
		if v, ok := sysfsUint(filepath.Join(hwmon, "power1_average")); ok {
			b.PowerUsage(float64(v) / 1e6)
		}
		if v, ok := sysfsUint(filepath.Join(hwmon, "power1_cap")); ok {
			b.PowerLimit(float64(v) / 1e6)
		}
		// pwm1 is 0..255.
		if v, ok := sysfsUint(filepath.Join(hwmon, "pwm1")); ok {
			b.FanSpeed(float64(v) / 255 * 100)
		}
	}

	if v, ok := sysfsUint(filepath.Join(device, "gpu_busy_percent")); ok {
		b.Utilization(float64(v))
	}

	total, totalOK := sysfsUint(filepath.Join(device, "mem_info_vram_total"))
	used, usedOK := sysfsUint(filepath.Join(device, "mem_info_vram_used"))
	if totalOK {
		b.MemoryTotalMB(total / (1024 * 1024))
	}
	if usedOK {
		b.MemoryUsedMB(used / (1024 * 1024))
	}
	if totalOK && usedOK && total > 0 {
		b.MemoryUtil(float64(used) / float64(total) * 100)
	}

	if cur, max, ok := parseDpmClocks(filepath.Join(device, "pp_dpm_sclk")); ok {
		b.CoreClockMHz(cur)
		b.MaxClockMHz(max)
	}
	if cur, _, ok := parseDpmClocks(filepath.Join(device, "pp_dpm_mclk")); ok {
		b.MemoryClockMHz(cur)
	}

	return b.Build()
}

func amdCardName(device string) string {
	if data, err := readSysfsFile(filepath.Join(device, "product_name")); err == nil {
		if name := strings.TrimSpace(string(data)); name != "" {
			return name
		}
	}
	if data, err := readSysfsFile(filepath.Join(device, "device")); err == nil {
		return "AMD GPU " + strings.TrimSpace(string(data))
	}
	return "AMD GPU"
}

// drmCards lists /sys/class/drm/card* directories whose PCI vendor matches,
// in card-number order.
func drmCards(pciVendor string) ([]string, error) {
	entries, err := os.ReadDir(drmRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", drmRoot, err)
	}

	var cards []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		if _, err := strconv.Atoi(strings.TrimPrefix(name, "card")); err != nil {
			continue
		}
		vendorPath := filepath.Join(drmRoot, name, "device", "vendor")
		data, err := readSysfsFile(vendorPath)
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) != pciVendor {
			continue
		}
		cards = append(cards, filepath.Join(drmRoot, name))
	}
	sort.Strings(cards)
	return cards, nil
}

// hwmonDir finds the single hwmon subdirectory the driver exposes for a card.
func hwmonDir(device string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(device, "hwmon"))
	if err != nil || len(entries) == 0 {
		return "", false
	}
	return filepath.Join(device, "hwmon", entries[0].Name()), true
}

func sysfsUint(path string) (uint64, bool) {
	data, err := readSysfsFile(path)
	if err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseDpmClocks reads an amdgpu pp_dpm_* table. Lines look like
// "1: 1500Mhz *" where the asterisk marks the active level; the last line
// carries the maximum.
func parseDpmClocks(path string) (current, max uint64, ok bool) {
	data, err := readSysfsFile(path)
	if err != nil {
		return 0, 0, false
	}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		mhz, err := strconv.ParseUint(strings.TrimSuffix(strings.ToLower(fields[1]), "mhz"), 10, 64)
		if err != nil {
			continue
		}
		max = mhz
		if strings.HasSuffix(line, "*") {
			current = mhz
		}
		ok = true
	}
	if ok && current == 0 {
		current = max
	}
	return current, max, ok
}
