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

// Package contracts defines the interfaces the telemetry core is extended
// through.
package contracts

import "github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"

// Named describes an extension that can be referenced by name.
type Named interface {
	Name() string
}

// Provider reads telemetry for one vendor family. Implementations own any
// subprocess or sysfs access and its timeouts; the core never imposes a
// deadline on them.
type Provider interface {
	Named

	// Vendor returns the family this provider serves.
	Vendor() gpu.Vendor

	// DetectGPUs returns every device the provider can see right now. An
	// empty result with a nil error means no hardware, not a failure. The
	// call must not mutate any shared state.
	DetectGPUs() ([]gpu.Info, error)

	// UpdateGPU refreshes the metric fields of record in place, keyed by
	// its vendor and name. Vendor and Name must stay unchanged. A record
	// the provider cannot match yields an error, never a panic.
	UpdateGPU(record *gpu.Info) error
}
