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
	"os"
	"path/filepath"
	"testing"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

func withFakeDrmRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	origRoot := drmRoot
	drmRoot = root
	t.Cleanup(func() { drmRoot = origRoot })
	return root
}

func writeSysfs(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestAmdDetectReadsSysfs(t *testing.T) {
	root := withFakeDrmRoot(t)
	device := filepath.Join(root, "card0", "device")
	writeSysfs(t, filepath.Join(device, "vendor"), "0x1002")
	writeSysfs(t, filepath.Join(device, "product_name"), "Radeon RX 7900 XTX")
	writeSysfs(t, filepath.Join(device, "gpu_busy_percent"), "37")
	writeSysfs(t, filepath.Join(device, "mem_info_vram_total"), "25753026560")
	writeSysfs(t, filepath.Join(device, "mem_info_vram_used"), "1073741824")
	writeSysfs(t, filepath.Join(device, "pp_dpm_sclk"), "0: 500Mhz\n1: 1800Mhz *\n2: 2500Mhz")
	hwmon := filepath.Join(device, "hwmon", "hwmon3")
	writeSysfs(t, filepath.Join(hwmon, "temp1_input"), "64000")
	writeSysfs(t, filepath.Join(hwmon, "power1_average"), "283000000")
	writeSysfs(t, filepath.Join(hwmon, "power1_cap"), "355000000")

	// A render node and a connector must be ignored.
	writeSysfs(t, filepath.Join(root, "renderD128", "device", "vendor"), "0x1002")
	writeSysfs(t, filepath.Join(root, "card0-DP-1", "device", "vendor"), "0x1002")

	infos, err := NewAmd().DetectGPUs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 gpu, got %d", len(infos))
	}

	info := infos[0]
	if info.Name != "Radeon RX 7900 XTX" {
		t.Fatalf("name = %q", info.Name)
	}
	if info.Temperature == nil || *info.Temperature != 64 {
		t.Fatalf("temperature = %v", info.Temperature)
	}
	if info.PowerUsage == nil || *info.PowerUsage != 283 {
		t.Fatalf("power usage = %v", info.PowerUsage)
	}
	if info.Utilization == nil || *info.Utilization != 37 {
		t.Fatalf("utilization = %v", info.Utilization)
	}
	if info.MemoryTotalMB == nil || *info.MemoryTotalMB != 24560 {
		t.Fatalf("memory total = %v", info.MemoryTotalMB)
	}
	if info.CoreClockMHz == nil || *info.CoreClockMHz != 1800 {
		t.Fatalf("core clock = %v", info.CoreClockMHz)
	}
	if info.MaxClockMHz == nil || *info.MaxClockMHz != 2500 {
		t.Fatalf("max clock = %v", info.MaxClockMHz)
	}
}

func TestAmdDetectNoCards(t *testing.T) {
	withFakeDrmRoot(t)
	infos, err := NewAmd().DetectGPUs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no gpus, got %d", len(infos))
	}
}

func TestAmdDetectMissingRoot(t *testing.T) {
	orig := drmRoot
	drmRoot = filepath.Join(t.TempDir(), "does-not-exist")
	t.Cleanup(func() { drmRoot = orig })

	infos, err := NewAmd().DetectGPUs()
	if err != nil {
		t.Fatalf("a host without drm must not error, got %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("expected no gpus, got %d", len(infos))
	}
}

func TestIntelDetectVariants(t *testing.T) {
	root := withFakeDrmRoot(t)

	igpu := filepath.Join(root, "card0")
	writeSysfs(t, filepath.Join(igpu, "device", "vendor"), "0x8086")
	writeSysfs(t, filepath.Join(igpu, "device", "label"), "Intel UHD Graphics 770")
	writeSysfs(t, filepath.Join(igpu, "gt_cur_freq_mhz"), "350")
	writeSysfs(t, filepath.Join(igpu, "gt_max_freq_mhz"), "1550")

	dgpu := filepath.Join(root, "card1")
	writeSysfs(t, filepath.Join(dgpu, "device", "vendor"), "0x8086")
	writeSysfs(t, filepath.Join(dgpu, "device", "label"), "Intel Arc A770")
	writeSysfs(t, filepath.Join(dgpu, "device", "mem_info_vram_total"), "17163091968")
	writeSysfs(t, filepath.Join(dgpu, "device", "mem_info_vram_used"), "536870912")

	infos, err := NewIntel().DetectGPUs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 gpus, got %d", len(infos))
	}

	if infos[0].Vendor != gpu.Intel(gpu.IntelIntegrated) {
		t.Fatalf("card0 vendor = %v, want integrated", infos[0].Vendor)
	}
	if infos[0].CoreClockMHz == nil || *infos[0].CoreClockMHz != 350 {
		t.Fatalf("card0 core clock = %v", infos[0].CoreClockMHz)
	}
	if infos[1].Vendor != gpu.Intel(gpu.IntelDiscrete) {
		t.Fatalf("card1 vendor = %v, want discrete", infos[1].Vendor)
	}
	if infos[1].MemoryTotalMB == nil || *infos[1].MemoryTotalMB != 16368 {
		t.Fatalf("card1 memory total = %v", infos[1].MemoryTotalMB)
	}
}

func TestForPlatform(t *testing.T) {
	linux := ForPlatform("linux")
	if len(linux) != 3 {
		t.Fatalf("expected 3 linux providers, got %d", len(linux))
	}
	if !linux[0].Vendor().SameFamily(gpu.Nvidia()) {
		t.Fatalf("nvidia must be probed first on linux")
	}
	darwin := ForPlatform("darwin")
	if len(darwin) != 1 || !darwin[0].Vendor().SameFamily(gpu.Apple()) {
		t.Fatalf("unexpected darwin providers: %v", darwin)
	}
	if got := ForPlatform("plan9"); len(got) != 0 {
		t.Fatalf("unsupported platform must have no providers, got %d", len(got))
	}
}
