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

package contracts

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

// ProviderRegistry routes telemetry operations to providers by vendor family
// and allows safe concurrent access. Registration order is preserved:
// detection walks providers in the order they were registered.
type ProviderRegistry struct {
	mu        sync.RWMutex
	log       logr.Logger
	providers []Provider
}

// NewProviderRegistry creates an empty registry. Detection skip reports are
// discarded until SetLogger is called.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{log: logr.Discard()}
}

// SetLogger routes provider failure reports to log.
func (r *ProviderRegistry) SetLogger(log logr.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = log
}

// Register adds a provider, replacing any existing provider for the same
// vendor family. A replacement keeps the original registration position.
func (r *ProviderRegistry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.providers {
		if existing.Vendor().SameFamily(p.Vendor()) {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// DetectAll calls DetectGPUs on every provider in registration order and
// concatenates the successful results. A failing provider is logged,
// contributes zero records and does not abort the pass.
func (r *ProviderRegistry) DetectAll() []gpu.Info {
	r.mu.RLock()
	log := r.log
	providers := make([]Provider, len(r.providers))
	copy(providers, r.providers)
	r.mu.RUnlock()

	var out []gpu.Info
	for _, p := range providers {
		infos, err := p.DetectGPUs()
		if err != nil {
			log.V(1).Info("provider detection failed, skipping", "provider", p.Name(), "error", err.Error())
			continue
		}
		out = append(out, infos...)
	}
	return out
}

// Update refreshes record through the provider registered for its vendor
// family. It returns gpu.ErrUnsupportedVendor when no provider matches.
func (r *ProviderRegistry) Update(record *gpu.Info) error {
	p, ok := r.providerFor(record.Vendor)
	if !ok {
		return fmt.Errorf("%w: %s", gpu.ErrUnsupportedVendor, record.Vendor)
	}
	if err := p.UpdateGPU(record); err != nil {
		return &gpu.UpdateError{Vendor: record.Vendor, Err: err}
	}
	return nil
}

// IsVendorSupported reports whether a provider is registered for the vendor's
// family.
func (r *ProviderRegistry) IsVendorSupported(v gpu.Vendor) bool {
	_, ok := r.providerFor(v)
	return ok
}

// RegisteredVendors returns the vendor tags of all providers in registration
// order.
func (r *ProviderRegistry) RegisteredVendors() []gpu.Vendor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]gpu.Vendor, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Vendor())
	}
	return out
}

func (r *ProviderRegistry) providerFor(v gpu.Vendor) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if p.Vendor().SameFamily(v) {
			return p, true
		}
	}
	return nil, false
}
