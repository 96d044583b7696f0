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

package monitor

import "time"

// emaSmoothing is the weight of each new collection-time sample.
const emaSmoothing = 0.1

// Stats are the Monitor's aggregate counters.
type Stats struct {
	StartTime         time.Time     `json:"startTime"`
	TotalMeasurements uint64        `json:"totalMeasurements"`
	TotalAlerts       uint64        `json:"totalAlerts"`
	TotalErrors       uint64        `json:"totalErrors"`
	LastCollection    time.Time     `json:"lastCollection"`
	AvgCollectionTime time.Duration `json:"avgCollectionTime"`
}

// recordCollection folds one successful collection into the counters. The
// first sample seeds the moving average exactly; later samples blend in with
// the smoothing factor.
func (s *Stats) recordCollection(elapsed time.Duration, now time.Time) {
	s.TotalMeasurements++
	s.LastCollection = now
	if s.TotalMeasurements == 1 {
		s.AvgCollectionTime = elapsed
		return
	}
	avg := float64(s.AvgCollectionTime)*(1-emaSmoothing) + float64(elapsed)*emaSmoothing
	s.AvgCollectionTime = time.Duration(avg)
}
