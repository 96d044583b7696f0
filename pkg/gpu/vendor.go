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

// Family identifies a GPU hardware manufacturer.
type Family string

const (
	FamilyNvidia  Family = "NVIDIA"
	FamilyAmd     Family = "AMD"
	FamilyIntel   Family = "INTEL"
	FamilyApple   Family = "APPLE"
	FamilyUnknown Family = "UNKNOWN"
)

// IntelKind distinguishes Intel GPU variants. Providers that cannot tell the
// variants apart report IntelUnspecified.
type IntelKind string

const (
	IntelUnspecified IntelKind = ""
	IntelIntegrated  IntelKind = "Integrated"
	IntelDiscrete    IntelKind = "Discrete"
)

// Vendor is a vendor family plus an optional Intel variant. The zero value is
// the unknown vendor. Vendor is comparable and safe to use as a map key.
type Vendor struct {
	Family Family    `json:"family" yaml:"family"`
	Intel  IntelKind `json:"intelKind,omitempty" yaml:"intelKind,omitempty"`
}

// Nvidia returns the NVIDIA vendor tag.
func Nvidia() Vendor { return Vendor{Family: FamilyNvidia} }

// Amd returns the AMD vendor tag.
func Amd() Vendor { return Vendor{Family: FamilyAmd} }

// Intel returns an Intel vendor tag with the given variant.
func Intel(kind IntelKind) Vendor { return Vendor{Family: FamilyIntel, Intel: kind} }

// Apple returns the Apple vendor tag.
func Apple() Vendor { return Vendor{Family: FamilyApple} }

// Unknown returns the unknown vendor tag.
func Unknown() Vendor { return Vendor{Family: FamilyUnknown} }

// SameFamily reports whether two vendors belong to the same family. Any Intel
// variant matches any other Intel variant; provider routing relies on this.
func (v Vendor) SameFamily(other Vendor) bool {
	return v.normalizedFamily() == other.normalizedFamily()
}

func (v Vendor) normalizedFamily() Family {
	if v.Family == "" {
		return FamilyUnknown
	}
	return v.Family
}

// IsKnown reports whether the vendor family has been identified.
func (v Vendor) IsKnown() bool {
	return v.normalizedFamily() != FamilyUnknown
}

func (v Vendor) String() string {
	if v.Family == FamilyIntel && v.Intel != IntelUnspecified {
		return string(v.Family) + " (" + string(v.Intel) + ")"
	}
	return string(v.normalizedFamily())
}
