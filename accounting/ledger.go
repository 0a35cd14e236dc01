//
// Copyright 2023 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package accounting

import "sync"

// StepRecord holds the privacy-relevant parameters of a single iteration
// of a randomized process, e.g. one optimization step of DP-SGD.
//
// A StepRecord is immutable once appended to a ledger.
type StepRecord struct {
	// NoiseMultiplier is the ratio of the noise scale to the clipping
	// bound used for the step. Strictly positive.
	NoiseMultiplier float64
	// SampleRate is the probability with which any given record
	// participated in the step. In (0, 1].
	SampleRate float64
}

// stepLedger is the append-only record of all steps reported so far.
//
// The ledger supports exactly one writer and any number of concurrent
// readers. There is no way to remove or modify an entry: expended
// privacy cannot be reclaimed, so the history must stay auditable.
type stepLedger struct {
	mu      sync.Mutex
	records []StepRecord
}

// append adds one record at the end of the ledger.
func (l *stepLedger) append(r StepRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r)
}

// len returns the number of records appended so far.
func (l *stepLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// snapshot returns a copy of the ledger contents. The copy is
// independent of the ledger: appends that happen after snapshot
// returns are not visible in it, and a snapshot never exposes a
// partially appended record.
func (l *stepLedger) snapshot() []StepRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	history := make([]StepRecord, len(l.records))
	copy(history, l.records)
	return history
}
