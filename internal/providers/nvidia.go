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
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

const (
	smiIdxName = iota
	smiIdxTemperature
	smiIdxUtilGPU
	smiIdxUtilMem
	smiIdxMemTotal
	smiIdxMemUsed
	smiIdxClockGraphics
	smiIdxClockMem
	smiIdxClockMaxGraphics
	smiIdxPowerDraw
	smiIdxPowerLimit
	smiIdxFanSpeed
	smiIdxDriverVersion

	smiExpectedFields = 13
)

var smiQueryArgs = []string{
	"--query-gpu=name,temperature.gpu,utilization.gpu,utilization.memory," +
		"memory.total,memory.used,clocks.gr,clocks.mem,clocks.max.gr," +
		"power.draw,power.limit,fan.speed,driver_version",
	"--format=csv,noheader,nounits",
}

// Nvidia reads telemetry through nvidia-smi CSV output (no cgo/NVML bindings
// to avoid crashes when the driver is absent).
type Nvidia struct{}

func NewNvidia() *Nvidia { return &Nvidia{} }

func (p *Nvidia) Name() string       { return "nvidia-smi" }
func (p *Nvidia) Vendor() gpu.Vendor { return gpu.Nvidia() }

func (p *Nvidia) DetectGPUs() ([]gpu.Info, error) {
	out, err := runCommand(context.Background(), "nvidia-smi", smiQueryArgs...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: gpu.ErrDriverNotInstalled}
		}
		return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: fmt.Errorf("nvidia-smi failed: %w", err)}
	}

	var infos []gpu.Info
	for _, fields := range splitSmiOutput(out) {
		infos = append(infos, parseSmiRow(fields))
	}
	return infos, nil
}

// UpdateGPU re-queries nvidia-smi and copies the metric fields of the row
// whose name matches the record. Vendor and Name stay untouched.
func (p *Nvidia) UpdateGPU(record *gpu.Info) error {
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

func splitSmiOutput(out []byte) [][]string {
	lines := bytes.Split(bytes.TrimSpace(out), []byte{'\n'})
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		fields := strings.Split(string(line), ",")
		for len(fields) < smiExpectedFields {
			fields = append(fields, "")
		}
		rows = append(rows, fields)
	}
	return rows
}

func parseSmiRow(fields []string) gpu.Info {
	b := gpu.NewBuilder().Vendor(gpu.Nvidia()).Active(true)

	if name := strings.TrimSpace(fields[smiIdxName]); name != "" {
		b.Name(name)
	}
	if v, ok := smiFloat(fields, smiIdxTemperature); ok {
		b.Temperature(v)
	}
	if v, ok := smiFloat(fields, smiIdxUtilGPU); ok {
		b.Utilization(v)
	}
	if v, ok := smiFloat(fields, smiIdxUtilMem); ok {
		b.MemoryUtil(v)
	}
	if v, ok := smiUint(fields, smiIdxMemTotal); ok {
		b.MemoryTotalMB(v)
	}
	if v, ok := smiUint(fields, smiIdxMemUsed); ok {
		b.MemoryUsedMB(v)
	}
	if v, ok := smiUint(fields, smiIdxClockGraphics); ok {
		b.CoreClockMHz(v)
	}
	if v, ok := smiUint(fields, smiIdxClockMem); ok {
		b.MemoryClockMHz(v)
	}
	if v, ok := smiUint(fields, smiIdxClockMaxGraphics); ok {
		b.MaxClockMHz(v)
	}
	if v, ok := smiFloat(fields, smiIdxPowerDraw); ok {
		b.PowerUsage(v)
	}
	if v, ok := smiFloat(fields, smiIdxPowerLimit); ok {
		b.PowerLimit(v)
	}
	if v, ok := smiFloat(fields, smiIdxFanSpeed); ok {
		b.FanSpeed(v)
	}
	if v := strings.TrimSpace(fields[smiIdxDriverVersion]); v != "" && v != "[N/A]" {
		b.DriverVersion(v)
	}
	return b.Build()
}

func smiFloat(fields []string, i int) (float64, bool) {
	if i >= len(fields) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func smiUint(fields []string, i int) (uint64, bool) {
	v, ok := smiFloat(fields, i)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// copyMetrics moves the refreshed metric fields onto dst, leaving identity
// fields alone.
func copyMetrics(dst *gpu.Info, src gpu.Info) {
	dst.Temperature = src.Temperature
	dst.Utilization = src.Utilization
	dst.MemoryUtil = src.MemoryUtil
	dst.PowerUsage = src.PowerUsage
	dst.PowerLimit = src.PowerLimit
	dst.FanSpeed = src.FanSpeed
	dst.MemoryTotalMB = src.MemoryTotalMB
	dst.MemoryUsedMB = src.MemoryUsedMB
	dst.CoreClockMHz = src.CoreClockMHz
	dst.MemoryClockMHz = src.MemoryClockMHz
	dst.MaxClockMHz = src.MaxClockMHz
	dst.DriverVersion = src.DriverVersion
	dst.Active = src.Active
}
