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

// Package manager coordinates providers, the record cache and consumers.
package manager

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/aleksandr-podmoskovniy/gpu-telemetry/internal/cache"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/contracts"
	"github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"
)

const (
	defaultCacheTTL        = 5 * time.Second
	defaultCacheMaxEntries = 64
)

// Option configures a Manager before detection runs.
type Option func(*options)

type options struct {
	ttl        time.Duration
	maxEntries int
	registry   *contracts.ProviderRegistry
}

// WithCacheTTL sets the record cache TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithCacheConfig sets the record cache TTL and size bound.
func WithCacheConfig(ttl time.Duration, maxEntries int) Option {
	return func(o *options) {
		o.ttl = ttl
		o.maxEntries = maxEntries
	}
}

// WithRegistry supplies a pre-populated provider registry. Without it the
// Manager starts with an empty registry and detection yields the placeholder
// record.
func WithRegistry(r *contracts.ProviderRegistry) Option {
	return func(o *options) { o.registry = r }
}

// WithProviders registers the given providers on a fresh registry.
func WithProviders(providers ...contracts.Provider) Option {
	return func(o *options) {
		r := contracts.NewProviderRegistry()
		for _, p := range providers {
			r.Register(p)
		}
		o.registry = r
	}
}

// Manager owns the GPU list, the primary selection and the record cache. It
// is safe for concurrent use.
type Manager struct {
	log      logr.Logger
	registry *contracts.ProviderRegistry
	cache    *cache.Keyed[int, gpu.Info]

	mu      sync.RWMutex
	gpus    []gpu.Info
	primary int
}

// New builds a Manager and immediately runs detection across the registered
// providers. When detection yields no devices the list holds one
// unknown-vendor placeholder, so Count() >= 1 always holds.
func New(log logr.Logger, opts ...Option) *Manager {
	o := options{ttl: defaultCacheTTL, maxEntries: defaultCacheMaxEntries}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = contracts.NewProviderRegistry()
	}

	m := &Manager{
		log:      log.WithName("gpu-manager"),
		registry: o.registry,
		cache:    cache.NewKeyed[int, gpu.Info](o.ttl, o.maxEntries),
	}
	m.registry.SetLogger(m.log)
	m.Redetect()
	return m
}

// Redetect replaces the GPU list with a fresh detection pass and recomputes
// the primary index. The cache is cleared so stale records cannot outlive
// the devices they described.
func (m *Manager) Redetect() {
	gpus := m.registry.DetectAll()
	if len(gpus) == 0 {
		m.log.V(1).Info("no gpus detected, using placeholder record")
		gpus = []gpu.Info{gpu.UnknownInfo()}
	}

	m.mu.Lock()
	m.gpus = gpus
	m.primary = selectPrimary(gpus)
	m.mu.Unlock()
	m.cache.Clear()

	m.log.Info("gpu detection finished", "count", len(gpus), "primary", selectPrimary(gpus))
}

// selectPrimary picks the first NVIDIA or AMD device, falling back to 0.
func selectPrimary(gpus []gpu.Info) int {
	for i, g := range gpus {
		if g.Vendor.SameFamily(gpu.Nvidia()) || g.Vendor.SameFamily(gpu.Amd()) {
			return i
		}
	}
	return 0
}

// Count returns the number of tracked GPUs, placeholder included.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.gpus)
}

// Get returns a copy of the in-memory record at index.
func (m *Manager) Get(index int) (gpu.Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.gpus) {
		return gpu.Info{}, fmt.Errorf("gpu %d: %w", index, gpu.ErrNotFound)
	}
	return m.gpus[index].Clone(), nil
}

// All returns a copy of the full GPU list.
func (m *Manager) All() []gpu.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]gpu.Info, len(m.gpus))
	for i, g := range m.gpus {
		out[i] = g.Clone()
	}
	return out
}

// Cached returns the record at index through the cache. On a miss the cache
// is warmed from the in-memory record; no provider is probed.
func (m *Manager) Cached(index int) (gpu.Info, error) {
	if cached, ok := m.cache.Get(index); ok {
		return cached, nil
	}
	record, err := m.Get(index)
	if err != nil {
		return gpu.Info{}, err
	}
	m.cache.Set(index, record)
	return record, nil
}

// Refresh updates the record at index through its provider and stores the
// result in both the list and the cache. An update that leaves the record
// with out-of-range readings is rejected with gpu.ErrNotActive and nothing
// is stored.
func (m *Manager) Refresh(index int) error {
	record, err := m.Get(index)
	if err != nil {
		return err
	}
	if err := m.registry.Update(&record); err != nil {
		m.log.V(1).Info("gpu refresh failed", "index", index, "error", err.Error())
		return err
	}
	if err := record.Validate(); err != nil {
		m.log.V(1).Info("gpu update produced an invalid record", "index", index, "error", err.Error())
		return fmt.Errorf("gpu %d: %v: %w", index, err, gpu.ErrNotActive)
	}

	m.mu.Lock()
	if index < len(m.gpus) {
		m.gpus[index] = record.Clone()
	}
	m.mu.Unlock()
	m.cache.Set(index, record)
	return nil
}

// RefreshAll refreshes every GPU, aggregating per-GPU failures. The cache is
// cleared regardless of the outcome so a partial failure never leaves a
// mixed-age cache behind.
func (m *Manager) RefreshAll() error {
	count := m.Count()

	var errs *multierror.Error
	for i := 0; i < count; i++ {
		if err := m.Refresh(i); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("gpu %d: %w", i, err))
		}
	}
	m.cache.Clear()
	return errs.ErrorOrNil()
}

// SetPrimary selects the GPU at index as primary, overriding the detection
// pick. The selection survives refreshes but not Redetect.
func (m *Manager) SetPrimary(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.gpus) {
		return fmt.Errorf("gpu %d: %w", index, gpu.ErrNotFound)
	}
	m.primary = index
	return nil
}

// PrimaryIndex returns the index of the primary GPU.
func (m *Manager) PrimaryIndex() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primary
}

// Primary returns the in-memory record of the primary GPU.
func (m *Manager) Primary() (gpu.Info, error) {
	return m.Get(m.PrimaryIndex())
}

// PrimaryCached returns the primary GPU record through the cache.
func (m *Manager) PrimaryCached() (gpu.Info, error) {
	return m.Cached(m.PrimaryIndex())
}

// RefreshPrimary refreshes the primary GPU through its provider.
func (m *Manager) RefreshPrimary() error {
	return m.Refresh(m.PrimaryIndex())
}

// ByVendor returns copies of all records in the given vendor family.
func (m *Manager) ByVendor(v gpu.Vendor) []gpu.Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []gpu.Info
	for _, g := range m.gpus {
		if g.Vendor.SameFamily(v) {
			out = append(out, g.Clone())
		}
	}
	return out
}

// ActiveIndices returns the indices of GPUs known to be active.
func (m *Manager) ActiveIndices() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int
	for i, g := range m.gpus {
		if g.IsActive() {
			out = append(out, i)
		}
	}
	return out
}

// AllActive reports whether every tracked GPU is known to be active.
func (m *Manager) AllActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, g := range m.gpus {
		if !g.IsActive() {
			return false
		}
	}
	return true
}

// IsVendorSupported reports whether a provider serves the vendor's family.
func (m *Manager) IsVendorSupported(v gpu.Vendor) bool {
	return m.registry.IsVendorSupported(v)
}

// CacheStats returns a snapshot of the record cache.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

// ClearCache drops all cached records.
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

// Query starts a new predicate builder over this Manager's GPUs.
func (m *Manager) Query() *Query {
	return &Query{manager: m}
}
