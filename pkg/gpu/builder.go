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

// Builder assembles an Info record field by field. Every field is optional;
// Build never fails. Use Validate on the result when bounds matter.
type Builder struct {
	info Info
}

// NewBuilder returns a builder for a record with an unknown vendor.
func NewBuilder() *Builder {
	return &Builder{info: Info{Vendor: Unknown()}}
}

func (b *Builder) Vendor(v Vendor) *Builder {
	b.info.Vendor = v
	return b
}

func (b *Builder) Name(name string) *Builder {
	b.info.Name = name
	return b
}

func (b *Builder) Temperature(v float64) *Builder {
	b.info.Temperature = &v
	return b
}

func (b *Builder) Utilization(v float64) *Builder {
	b.info.Utilization = &v
	return b
}

func (b *Builder) MemoryUtil(v float64) *Builder {
	b.info.MemoryUtil = &v
	return b
}

func (b *Builder) PowerUsage(v float64) *Builder {
	b.info.PowerUsage = &v
	return b
}

func (b *Builder) PowerLimit(v float64) *Builder {
	b.info.PowerLimit = &v
	return b
}

func (b *Builder) FanSpeed(v float64) *Builder {
	b.info.FanSpeed = &v
	return b
}

func (b *Builder) MemoryTotalMB(v uint64) *Builder {
	b.info.MemoryTotalMB = &v
	return b
}

func (b *Builder) MemoryUsedMB(v uint64) *Builder {
	b.info.MemoryUsedMB = &v
	return b
}

func (b *Builder) CoreClockMHz(v uint64) *Builder {
	b.info.CoreClockMHz = &v
	return b
}

func (b *Builder) MemoryClockMHz(v uint64) *Builder {
	b.info.MemoryClockMHz = &v
	return b
}

func (b *Builder) MaxClockMHz(v uint64) *Builder {
	b.info.MaxClockMHz = &v
	return b
}

func (b *Builder) DriverVersion(v string) *Builder {
	b.info.DriverVersion = &v
	return b
}

func (b *Builder) Active(v bool) *Builder {
	b.info.Active = &v
	return b
}

// Build returns the assembled record.
func (b *Builder) Build() Info {
	return b.info.Clone()
}
