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

// Package providers holds the built-in telemetry backends. Each backend
// shells out to vendor tooling or reads sysfs; none of them link vendor
// libraries, so a missing driver degrades to a detection error instead of a
// load failure.
package providers

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/contracts"
)

const commandTimeout = 5 * time.Second

// runCommand is swapped out by tests.
var runCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

// ForPlatform returns the providers that make sense for the given GOOS, in
// the order detection should try them.
func ForPlatform(goos string) []contracts.Provider {
	switch goos {
	case "linux":
		return []contracts.Provider{NewNvidia(), NewAmd(), NewIntel()}
	case "darwin":
		return []contracts.Provider{NewApple()}
	case "windows":
		return []contracts.Provider{NewNvidia()}
	default:
		return nil
	}
}

// Default returns the providers for the running platform.
func Default() []contracts.Provider {
	return ForPlatform(runtime.GOOS)
}
