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

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// historyOf returns a history of n identical steps.
func historyOf(noiseMultiplier, sampleRate float64, n int) []StepRecord {
	history := make([]StepRecord, n)
	for i := range history {
		history[i] = StepRecord{NoiseMultiplier: noiseMultiplier, SampleRate: sampleRate}
	}
	return history
}

// mustStep fails the test if recording the step fails.
func mustStep(t *testing.T, a *Accountant, noiseMultiplier, sampleRate float64) {
	t.Helper()
	if err := a.Step(noiseMultiplier, sampleRate); err != nil {
		t.Fatalf("Step(%f, %f) failed with %v", noiseMultiplier, sampleRate, err)
	}
}

func TestNewAccountantDefaults(t *testing.T) {
	a := NewAccountant(nil)
	if got, want := a.MechanismName(), "rdp"; got != want {
		t.Errorf("MechanismName: got %q, want %q", got, want)
	}
	if got := a.Len(); got != 0 {
		t.Errorf("Len: got %d, want 0", got)
	}
}

func TestAccountantStepValidation(t *testing.T) {
	for _, tc := range []struct {
		desc            string
		noiseMultiplier float64
		sampleRate      float64
		wantErr         bool
	}{
		{"zero noise multiplier",
			0, 0.5,
			true},
		{"negative noise multiplier",
			-1, 0.5,
			true},
		{"noise multiplier is NaN",
			math.NaN(), 0.5,
			true},
		{"sample rate greater than 1",
			1.0, 1.5,
			true},
		{"zero sample rate",
			1.0, 0,
			true},
		{"negative sample rate",
			1.0, -0.5,
			true},
		{"sample rate is NaN",
			1.0, math.NaN(),
			true},
		{"valid parameters",
			1.0, 0.01,
			false},
		{"sample rate of exactly 1",
			1.0, 1.0,
			false},
	} {
		a := NewAccountant(nil)
		err := a.Step(tc.noiseMultiplier, tc.sampleRate)
		if (err != nil) != tc.wantErr {
			t.Errorf("Step: when %s for err got %v, want %t", tc.desc, err, tc.wantErr)
		}
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidStepParameters) {
				t.Errorf("Step: when %s got error %v, want ErrInvalidStepParameters", tc.desc, err)
			}
			// No partial append on failure.
			if got := a.Len(); got != 0 {
				t.Errorf("Step: when %s ledger length got %d, want 0", tc.desc, got)
			}
		} else if got := a.Len(); got != 1 {
			t.Errorf("Step: when %s ledger length got %d, want 1", tc.desc, got)
		}
	}
}

func TestAccountantEpsilonDeltaValidation(t *testing.T) {
	for _, mechanism := range []Mechanism{NewRDP(nil), NewGaussianMomentsMechanism(), NewPRV(nil)} {
		a := NewAccountant(&AccountantOptions{Mechanism: mechanism})
		mustStep(t, a, 1.0, 0.1)
		for _, delta := range []float64{0, 1, -0.5, 2, math.NaN()} {
			if _, err := a.Epsilon(delta); !errors.Is(err, ErrInvalidDelta) {
				t.Errorf("Epsilon(%e) with mechanism %s: got error %v, want ErrInvalidDelta",
					delta, mechanism.Name(), err)
			}
		}
	}
}

func TestAccountantLenMatchesStepCount(t *testing.T) {
	a := NewAccountant(nil)
	const steps = 137
	for i := 0; i < steps; i++ {
		mustStep(t, a, 1.1, 0.004)
	}
	if got := a.Len(); got != steps {
		t.Errorf("Len after %d steps: got %d", steps, got)
	}
}

func TestAccountantEmptyHistoryEpsilon(t *testing.T) {
	for _, mechanism := range []Mechanism{NewRDP(nil), NewGaussianMomentsMechanism(), NewPRV(nil)} {
		a := NewAccountant(&AccountantOptions{Mechanism: mechanism})
		eps, err := a.Epsilon(1e-5)
		if err != nil {
			t.Errorf("Epsilon on empty ledger with mechanism %s failed with %v", mechanism.Name(), err)
		}
		if eps != 0 {
			t.Errorf("Epsilon on empty ledger with mechanism %s: got %f, want 0", mechanism.Name(), eps)
		}
	}
}

func TestAccountantEpsilonIdempotent(t *testing.T) {
	for _, mechanism := range []Mechanism{NewRDP(nil), NewGaussianMomentsMechanism(), NewPRV(&PRVOptions{EpsError: 0.05})} {
		a := NewAccountant(&AccountantOptions{Mechanism: mechanism})
		for i := 0; i < 25; i++ {
			mustStep(t, a, 0.9, 0.02)
		}
		first, err := a.Epsilon(1e-5)
		if err != nil {
			t.Fatalf("Epsilon with mechanism %s failed with %v", mechanism.Name(), err)
		}
		second, err := a.Epsilon(1e-5)
		if err != nil {
			t.Fatalf("Epsilon with mechanism %s failed with %v", mechanism.Name(), err)
		}
		if first != second {
			t.Errorf("Epsilon with mechanism %s is not idempotent: got %v then %v", mechanism.Name(), first, second)
		}
	}
}

func TestAccountantEpsilonMonotone(t *testing.T) {
	for _, tc := range []struct {
		mechanism Mechanism
		// The privacy loss distribution mechanism re-discretizes its grid on
		// every query, so consecutive estimates carry jitter up to its error
		// target even though the underlying guarantee only grows.
		slack float64
	}{
		{mechanism: NewRDP(nil)},
		{mechanism: NewGaussianMomentsMechanism()},
		{mechanism: NewPRV(&PRVOptions{EpsError: 0.05}), slack: 0.05},
	} {
		a := NewAccountant(&AccountantOptions{Mechanism: tc.mechanism})
		prev := 0.0
		for i := 0; i < 30; i++ {
			mustStep(t, a, 1.0, 0.05)
			eps, err := a.Epsilon(1e-5)
			if err != nil {
				t.Fatalf("Epsilon with mechanism %s failed with %v", tc.mechanism.Name(), err)
			}
			if eps < prev-tc.slack {
				t.Errorf("Epsilon with mechanism %s decreased from %v to %v after step %d",
					tc.mechanism.Name(), prev, eps, i+1)
			}
			prev = eps
		}
	}
}

func TestAccountantSnapshotIsolation(t *testing.T) {
	a := NewAccountant(nil)
	mustStep(t, a, 1.0, 0.1)
	snapshot := a.Snapshot()
	mustStep(t, a, 2.0, 0.2)
	if diff := cmp.Diff([]StepRecord{{NoiseMultiplier: 1.0, SampleRate: 0.1}}, snapshot); diff != "" {
		t.Errorf("Snapshot changed after a subsequent step (-want +got):\n%s", diff)
	}
	// Mutating the snapshot must not leak into the ledger.
	snapshot[0] = StepRecord{NoiseMultiplier: 99, SampleRate: 1}
	want := []StepRecord{{NoiseMultiplier: 1.0, SampleRate: 0.1}, {NoiseMultiplier: 2.0, SampleRate: 0.2}}
	if diff := cmp.Diff(want, a.Snapshot()); diff != "" {
		t.Errorf("ledger affected by snapshot mutation (-want +got):\n%s", diff)
	}
}

func TestAccountantConcurrentStepAndEpsilon(t *testing.T) {
	a := NewAccountant(nil)
	const steps = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < steps; i++ {
			if err := a.Step(1.0, 0.01); err != nil {
				t.Errorf("Step failed with %v", err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := a.Epsilon(1e-5); err != nil {
				t.Errorf("Epsilon failed with %v", err)
				return
			}
			_ = a.Len()
		}
	}()
	wg.Wait()
	if got := a.Len(); got != steps {
		t.Errorf("Len after concurrent stepping: got %d, want %d", got, steps)
	}
}

func TestCheckSameMechanism(t *testing.T) {
	rdp1 := NewAccountant(&AccountantOptions{Mechanism: NewRDP(nil)})
	rdp2 := NewAccountant(&AccountantOptions{Mechanism: NewRDP(nil)})
	gdp := NewAccountant(&AccountantOptions{Mechanism: NewGaussianMomentsMechanism()})

	if err := CheckSameMechanism(); err != nil {
		t.Errorf("CheckSameMechanism with no accountants: got %v, want nil", err)
	}
	if err := CheckSameMechanism(rdp1, rdp2); err != nil {
		t.Errorf("CheckSameMechanism with matching mechanisms: got %v, want nil", err)
	}
	if err := CheckSameMechanism(rdp1, gdp); !errors.Is(err, ErrMechanismMismatch) {
		t.Errorf("CheckSameMechanism with differing mechanisms: got %v, want ErrMechanismMismatch", err)
	}
}
