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
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

// Apple reads display adapter inventory through system_profiler. macOS does
// not expose live utilization without private APIs, so records carry identity
// and memory only.
type Apple struct{}

func NewApple() *Apple { return &Apple{} }

func (p *Apple) Name() string       { return "system-profiler" }
func (p *Apple) Vendor() gpu.Vendor { return gpu.Apple() }

type displaysReport struct {
	SPDisplaysDataType []struct {
		Model string `json:"sppci_model"`
		VRAM  string `json:"spdisplays_vram"`
		Cores string `json:"sppci_cores"`
	} `json:"SPDisplaysDataType"`
}

func (p *Apple) DetectGPUs() ([]gpu.Info, error) {
	out, err := runCommand(context.Background(), "system_profiler", "SPDisplaysDataType", "-json")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: gpu.ErrDriverNotInstalled}
		}
		return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: fmt.Errorf("system_profiler failed: %w", err)}
	}

	var report displaysReport
	if err := json.Unmarshal(out, &report); err != nil {
		return nil, &gpu.DetectionError{Vendor: p.Vendor(), Err: fmt.Errorf("parse system_profiler output: %w", err)}
	}

	var infos []gpu.Info
	for _, d := range report.SPDisplaysDataType {
		b := gpu.NewBuilder().Vendor(gpu.Apple()).Active(true)
		if d.Model != "" {
			b.Name(d.Model)
		}
		if mb, ok := parseVRAM(d.VRAM); ok {
			b.MemoryTotalMB(mb)
		}
		infos = append(infos, b.Build())
	}
	return infos, nil
}

func (p *Apple) UpdateGPU(record *gpu.Info) error {
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

// parseVRAM handles strings like "8 GB" and "1536 MB".
func parseVRAM(s string) (uint64, bool) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) < 2 {
		return 0, false
	}
	v, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToUpper(fields[1]) {
	case "GB":
		return v * 1024, true
	case "MB":
		return v, true
	default:
		return 0, false
	}
}
