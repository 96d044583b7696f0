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

package manager

import "github.com/aleksandr-podmoskovniy/gpu-telemetry/pkg/gpu"

// Query is a lazy predicate builder over a Manager's GPUs. Predicates
// combine with AND; nothing is evaluated until a terminal method runs.
// Records resolve through the Manager's cached-read path, so a Query warms
// the cache the same way direct Cached calls do.
//
// A record missing a field fails any min/max predicate on that field;
// absence is not a wildcard.
type Query struct {
	manager *Manager

	vendor         *gpu.Vendor
	minTemperature *float64
	maxTemperature *float64
	minUtilization *float64
	maxUtilization *float64
	activeOnly     bool
	hasTemperature bool
	hasPower       bool
}

// Vendor keeps records whose vendor equals v exactly, Intel variant
// included.
func (q *Query) Vendor(v gpu.Vendor) *Query {
	q.vendor = &v
	return q
}

// MinTemperature keeps records with a reported temperature >= v.
func (q *Query) MinTemperature(v float64) *Query {
	q.minTemperature = &v
	return q
}

// MaxTemperature keeps records with a reported temperature <= v.
func (q *Query) MaxTemperature(v float64) *Query {
	q.maxTemperature = &v
	return q
}

// MinUtilization keeps records with a reported utilization >= v.
func (q *Query) MinUtilization(v float64) *Query {
	q.minUtilization = &v
	return q
}

// MaxUtilization keeps records with a reported utilization <= v.
func (q *Query) MaxUtilization(v float64) *Query {
	q.maxUtilization = &v
	return q
}

// ActiveOnly keeps records whose Active flag is known to be true.
func (q *Query) ActiveOnly() *Query {
	q.activeOnly = true
	return q
}

// HasTemperature keeps records that report a temperature.
func (q *Query) HasTemperature() *Query {
	q.hasTemperature = true
	return q
}

// HasPower keeps records that report power usage.
func (q *Query) HasPower() *Query {
	q.hasPower = true
	return q
}

func (q *Query) matches(record gpu.Info) bool {
	if q.vendor != nil && record.Vendor != *q.vendor {
		return false
	}
	if q.minTemperature != nil && (record.Temperature == nil || *record.Temperature < *q.minTemperature) {
		return false
	}
	if q.maxTemperature != nil && (record.Temperature == nil || *record.Temperature > *q.maxTemperature) {
		return false
	}
	if q.minUtilization != nil && (record.Utilization == nil || *record.Utilization < *q.minUtilization) {
		return false
	}
	if q.maxUtilization != nil && (record.Utilization == nil || *record.Utilization > *q.maxUtilization) {
		return false
	}
	if q.activeOnly && !record.IsActive() {
		return false
	}
	if q.hasTemperature && record.Temperature == nil {
		return false
	}
	if q.hasPower && record.PowerUsage == nil {
		return false
	}
	return true
}

// Collect returns all matching records in index order.
func (q *Query) Collect() []gpu.Info {
	var out []gpu.Info
	count := q.manager.Count()
	for i := 0; i < count; i++ {
		record, err := q.manager.Cached(i)
		if err != nil {
			continue
		}
		if q.matches(record) {
			out = append(out, record)
		}
	}
	return out
}

// First returns the first matching record in index order.
func (q *Query) First() (gpu.Info, bool) {
	count := q.manager.Count()
	for i := 0; i < count; i++ {
		record, err := q.manager.Cached(i)
		if err != nil {
			continue
		}
		if q.matches(record) {
			return record, true
		}
	}
	return gpu.Info{}, false
}

// Count returns the number of matching records without collecting them.
func (q *Query) Count() int {
	n := 0
	count := q.manager.Count()
	for i := 0; i < count; i++ {
		record, err := q.manager.Cached(i)
		if err != nil {
			continue
		}
		if q.matches(record) {
			n++
		}
	}
	return n
}

// Exists reports whether any record matches.
func (q *Query) Exists() bool {
	_, ok := q.First()
	return ok
}
