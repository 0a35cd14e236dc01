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
	"math"
	"testing"

	"gonum.org/v1/gonum/stat/distuv"
)

func TestGaussianMomentsName(t *testing.T) {
	if got, want := NewGaussianMomentsMechanism().Name(), "gaussian-moments"; got != want {
		t.Errorf("Name: got %q, want %q", got, want)
	}
}

func TestGaussianMomentsEmptyHistory(t *testing.T) {
	eps, err := NewGaussianMomentsMechanism().ComputeEpsilon(nil, 1e-5)
	if err != nil {
		t.Fatalf("ComputeEpsilon failed with %v", err)
	}
	if eps != 0 {
		t.Errorf("ComputeEpsilon on empty history: got %f, want 0", eps)
	}
}

func TestDeltaForMu(t *testing.T) {
	// At ε = 0 the conversion collapses to Φ(μ/2) - Φ(-μ/2).
	mu := 0.8
	want := distuv.UnitNormal.CDF(mu/2) - distuv.UnitNormal.CDF(-mu/2)
	if got := deltaForMu(mu, 0); math.Abs(got-want) > 1e-12 {
		t.Errorf("deltaForMu(%f, 0): got %v, want %v", mu, got, want)
	}
	// δ is decreasing in ε.
	prev := 1.0
	for _, eps := range []float64{0, 0.5, 1, 2, 4} {
		got := deltaForMu(mu, eps)
		if got >= prev {
			t.Errorf("deltaForMu(%f, %f): got %v, want less than %v", mu, eps, got, prev)
		}
		prev = got
	}
}

// The reported ε must bracket the target δ: it satisfies the budget,
// and shrinking it beyond the search accuracy does not.
func TestGaussianMomentsEpsilonBracketsDelta(t *testing.T) {
	for _, tc := range []struct {
		desc            string
		noiseMultiplier float64
		sampleRate      float64
		steps           int
		delta           float64
	}{
		{"reference DP-SGD configuration", 1.0, 0.01, 1000, 1e-5},
		{"noisier run", 2.0, 0.05, 500, 1e-6},
		{"short full-batch run", 1.5, 1.0, 5, 1e-8},
	} {
		history := historyOf(tc.noiseMultiplier, tc.sampleRate, tc.steps)
		eps, err := NewGaussianMomentsMechanism().ComputeEpsilon(history, tc.delta)
		if err != nil {
			t.Fatalf("ComputeEpsilon: when %s failed with %v", tc.desc, err)
		}
		if eps <= 0 || math.IsInf(eps, 0) || math.IsNaN(eps) {
			t.Fatalf("ComputeEpsilon: when %s got %v, want finite and positive", tc.desc, eps)
		}
		var muSquared float64
		for _, r := range history {
			muSquared += r.SampleRate * r.SampleRate * math.Expm1(1/(r.NoiseMultiplier*r.NoiseMultiplier))
		}
		mu := math.Sqrt(muSquared)
		if got := deltaForMu(mu, eps); got > tc.delta {
			t.Errorf("ComputeEpsilon: when %s δ at reported ε %f is %e, want at most %e", tc.desc, eps, got, tc.delta)
		}
		if got := deltaForMu(mu, eps*(1-3*gdpEpsAccuracy)); got <= tc.delta {
			t.Errorf("ComputeEpsilon: when %s ε %f is not tight, δ at slightly smaller ε is already %e", tc.desc, eps, got)
		}
	}
}

// A tiny noise multiplier overflows the μ² accumulation; certifying
// any finite ε there would understate the true privacy loss.
func TestGaussianMomentsTinyNoiseMultiplier(t *testing.T) {
	eps, err := NewGaussianMomentsMechanism().ComputeEpsilon(historyOf(0.01, 1.0, 1), 1e-5)
	if err != nil {
		t.Fatalf("ComputeEpsilon failed with %v", err)
	}
	if !math.IsInf(eps, 1) {
		t.Errorf("ComputeEpsilon at noise multiplier 0.01: got %v, want +Inf", eps)
	}
}

func TestGaussianMomentsEpsilonMonotoneInSteps(t *testing.T) {
	m := NewGaussianMomentsMechanism()
	prev := 0.0
	for _, steps := range []int{1, 10, 100, 1000} {
		eps, err := m.ComputeEpsilon(historyOf(1.0, 0.01, steps), 1e-5)
		if err != nil {
			t.Fatalf("ComputeEpsilon failed with %v", err)
		}
		if eps < prev {
			t.Errorf("ComputeEpsilon decreased from %f to %f going to %d steps", prev, eps, steps)
		}
		prev = eps
	}
}

func TestGaussianMomentsHeterogeneousHistory(t *testing.T) {
	m := NewGaussianMomentsMechanism()
	partA := historyOf(1.0, 0.02, 200)
	partB := historyOf(0.8, 0.01, 300)
	epsA, err := m.ComputeEpsilon(partA, 1e-5)
	if err != nil {
		t.Fatalf("ComputeEpsilon failed with %v", err)
	}
	epsB, err := m.ComputeEpsilon(partB, 1e-5)
	if err != nil {
		t.Fatalf("ComputeEpsilon failed with %v", err)
	}
	combined, err := m.ComputeEpsilon(append(partA, partB...), 1e-5)
	if err != nil {
		t.Fatalf("ComputeEpsilon failed with %v", err)
	}
	if combined < math.Max(epsA, epsB) {
		t.Errorf("ComputeEpsilon on combined history got %f, want at least max(%f, %f)", combined, epsA, epsB)
	}
}
