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

package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a GPU index is out of range.
	ErrNotFound = errors.New("gpu not found")

	// ErrNotActive is returned when an operation requires an active GPU.
	ErrNotActive = errors.New("gpu not active")

	// ErrUnsupportedVendor is returned when no provider handles a vendor family.
	ErrUnsupportedVendor = errors.New("unsupported gpu vendor")

	// ErrDriverNotInstalled is returned when vendor tooling is missing from
	// the host.
	ErrDriverNotInstalled = errors.New("gpu driver not installed")
)

// FeatureNotEnabledError reports an optional capability that the build or the
// host does not provide.
type FeatureNotEnabledError struct {
	Feature string
}

func (e *FeatureNotEnabledError) Error() string {
	return fmt.Sprintf("feature %q is not enabled", e.Feature)
}

// DetectionError wraps a provider failure during GPU discovery.
type DetectionError struct {
	Vendor Vendor
	Err    error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("detect %s gpus: %v", e.Vendor, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// UpdateError wraps a provider failure during a metrics refresh.
type UpdateError struct {
	Vendor Vendor
	Err    error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("update %s gpu metrics: %v", e.Vendor, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }
