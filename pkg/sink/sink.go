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

// Package sink delivers telemetry samples to external stores.
package sink

import (
	"time"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

// Sample is one GPU's record at one poll.
type Sample struct {
	Time     time.Time
	GPUIndex int
	Record   gpu.Info
}

// Sink receives the samples of each successful poll cycle. WriteSamples runs
// on the monitor goroutine; a slow sink delays only the next poll.
type Sink interface {
	Name() string
	WriteSamples(samples []Sample) error
	Close() error
}
