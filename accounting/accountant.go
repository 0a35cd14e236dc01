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

// Package accounting tracks cumulative privacy expenditure of iterative
// randomized algorithms, e.g. differentially private gradient-based
// training.
//
// An Accountant records one (noise multiplier, sample rate) pair per
// algorithmic step in an append-only ledger and, on demand, converts
// the recorded history into a bound on the privacy loss ε for a target
// failure probability δ. The conversion is delegated to a composition
// Mechanism chosen at construction; rdp, gaussian-moments and prv
// mechanisms are provided.
//
// The accountant supports one stepping goroutine and any number of
// concurrently querying goroutines. Queries operate on a consistent
// snapshot of the ledger and never block the stepping goroutine beyond
// the copy itself.
package accounting

import (
	"fmt"

	"github.com/abouhadid/opacus-V112/checks"
)

// Accountant keeps the factual history of a randomized process and
// bounds its cumulative privacy loss.
//
// The zero value is not usable; use NewAccountant.
type Accountant struct {
	ledger    *stepLedger
	mechanism Mechanism
}

// AccountantOptions contains the options necessary to initialize an
// Accountant.
type AccountantOptions struct {
	// Mechanism used to compose per-step privacy parameters into an ε
	// bound. Fixed for the lifetime of the accountant: swapping
	// mechanisms mid-training would invalidate the composed bound.
	// Defaults to the rdp mechanism with default orders.
	Mechanism Mechanism
}

// NewAccountant returns a new Accountant with an empty ledger.
func NewAccountant(opt *AccountantOptions) *Accountant {
	if opt == nil {
		opt = &AccountantOptions{}
	}
	m := opt.Mechanism
	if m == nil {
		m = NewRDP(nil)
	}
	return &Accountant{
		ledger:    &stepLedger{},
		mechanism: m,
	}
}

// Step records one privacy-relevant event with the given noise
// multiplier and sample rate. It is the sole mutator of the ledger.
//
// Step fails with ErrInvalidStepParameters if the noise multiplier is
// not strictly positive or the sample rate is outside (0, 1]; the
// ledger is left unchanged in that case.
//
// Step calls must be serialized by the caller with respect to each
// other (single-writer discipline); concurrent Epsilon and Len calls
// are safe.
func (a *Accountant) Step(noiseMultiplier, sampleRate float64) error {
	if err := checks.CheckNoiseMultiplier(noiseMultiplier); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStepParameters, err)
	}
	if err := checks.CheckSampleRate(sampleRate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStepParameters, err)
	}
	a.ledger.append(StepRecord{NoiseMultiplier: noiseMultiplier, SampleRate: sampleRate})
	return nil
}

// Epsilon returns the privacy budget expended so far: the smallest ε
// the mechanism can certify such that the recorded history is
// (ε,δ)-differentially private.
//
// Epsilon fails with ErrInvalidDelta if delta is outside (0, 1). With
// an empty ledger it returns 0 for any valid delta. Repeated calls
// without intervening Step calls return identical results.
func (a *Accountant) Epsilon(delta float64, opts ...QueryOption) (float64, error) {
	if err := checks.CheckDeltaStrict(delta); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	return a.mechanism.ComputeEpsilon(a.ledger.snapshot(), delta, opts...)
}

// Len returns the number of steps recorded so far.
func (a *Accountant) Len() int {
	return a.ledger.len()
}

// MechanismName returns the stable identifier of the composition
// mechanism in use, fixed for the accountant's lifetime.
func (a *Accountant) MechanismName() string {
	return a.mechanism.Name()
}

// Snapshot returns a copy of the recorded history in chronological
// order. External collaborators use it e.g. to persist accountant
// state; the accountant itself never exposes its live ledger.
func (a *Accountant) Snapshot() []StepRecord {
	return a.ledger.snapshot()
}

// CheckSameMechanism returns ErrMechanismMismatch unless all given
// accountants use the same mechanism name. Ledgers produced under
// different mechanisms must never be combined, since their composed
// bounds are not comparable.
func CheckSameMechanism(accountants ...*Accountant) error {
	if len(accountants) == 0 {
		return nil
	}
	name := accountants[0].MechanismName()
	for _, a := range accountants[1:] {
		if a.MechanismName() != name {
			return fmt.Errorf("%w: %q and %q", ErrMechanismMismatch, name, a.MechanismName())
		}
	}
	return nil
}
