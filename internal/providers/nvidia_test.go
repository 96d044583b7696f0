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
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

func withFakeCommand(t *testing.T, fn func(ctx context.Context, name string, args ...string) ([]byte, error)) {
	t.Helper()
	orig := runCommand
	runCommand = fn
	t.Cleanup(func() { runCommand = orig })
}

const smiSample = `NVIDIA GeForce RTX 4090, 62, 87, 45, 24564, 10240, 2520, 10501, 2520, 310.52, 450.00, 43, 550.54.14
NVIDIA GeForce RTX 3060, 51, 12, 8, 12288, 2048, 1320, 7501, 1777, 98.10, 170.00, [N/A], 550.54.14
`

func TestNvidiaDetectParsesRows(t *testing.T) {
	withFakeCommand(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if name != "nvidia-smi" {
			t.Fatalf("unexpected command %q", name)
		}
		return []byte(smiSample), nil
	})

	infos, err := NewNvidia().DetectGPUs()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 gpus, got %d", len(infos))
	}

	first := infos[0]
	if first.Name != "NVIDIA GeForce RTX 4090" {
		t.Fatalf("name = %q", first.Name)
	}
	if first.Temperature == nil || *first.Temperature != 62 {
		t.Fatalf("temperature = %v", first.Temperature)
	}
	if first.Utilization == nil || *first.Utilization != 87 {
		t.Fatalf("utilization = %v", first.Utilization)
	}
	if first.MemoryTotalMB == nil || *first.MemoryTotalMB != 24564 {
		t.Fatalf("memory total = %v", first.MemoryTotalMB)
	}
	if first.PowerUsage == nil || *first.PowerUsage != 310.52 {
		t.Fatalf("power usage = %v", first.PowerUsage)
	}
	if first.FanSpeed == nil || *first.FanSpeed != 43 {
		t.Fatalf("fan speed = %v", first.FanSpeed)
	}
	if first.DriverVersion == nil || *first.DriverVersion != "550.54.14" {
		t.Fatalf("driver version = %v", first.DriverVersion)
	}
	if !first.IsActive() {
		t.Fatalf("detected gpu must be active")
	}

	// [N/A] fan reading must stay unset, not parse to zero.
	if infos[1].FanSpeed != nil {
		t.Fatalf("fan speed should be nil for [N/A], got %v", *infos[1].FanSpeed)
	}
}

func TestNvidiaDetectMissingBinary(t *testing.T) {
	withFakeCommand(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return nil, exec.ErrNotFound
	})

	_, err := NewNvidia().DetectGPUs()
	if !errors.Is(err, gpu.ErrDriverNotInstalled) {
		t.Fatalf("expected ErrDriverNotInstalled, got %v", err)
	}
	var det *gpu.DetectionError
	if !errors.As(err, &det) {
		t.Fatalf("expected DetectionError, got %T", err)
	}
}

func TestNvidiaUpdateMatchesByName(t *testing.T) {
	withFakeCommand(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(smiSample), nil
	})

	record := gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("NVIDIA GeForce RTX 3060").Build()
	if err := NewNvidia().UpdateGPU(&record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Name != "NVIDIA GeForce RTX 3060" {
		t.Fatalf("update must not change the name, got %q", record.Name)
	}
	if record.Temperature == nil || *record.Temperature != 51 {
		t.Fatalf("temperature = %v", record.Temperature)
	}
}

func TestNvidiaUpdateUnknownName(t *testing.T) {
	withFakeCommand(t, func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(smiSample), nil
	})

	record := gpu.NewBuilder().Vendor(gpu.Nvidia()).Name("NVIDIA Tesla T4").Build()
	err := NewNvidia().UpdateGPU(&record)
	if !errors.Is(err, gpu.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
