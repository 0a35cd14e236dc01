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
	"fmt"

	"github.com/abouhadid/opacus-V112/checks"
)

// calibrationAccuracy approximates the relative accuracy up to which
// the smallest sufficient noise multiplier is determined.
const calibrationAccuracy = 1e-3

// noiseMultiplierBound caps the noise multiplier search. Noise scales
// beyond it drown out any signal, so targets that require more noise
// are treated as infeasible.
const noiseMultiplierBound = 1e10

// NoiseMultiplierFor calculates the smallest noise multiplier σ such
// that a training run of the given number of steps, all at the given
// sample rate, stays within the (ε,δ) privacy budget under the given
// mechanism. A nil mechanism defaults to rdp with default orders.
//
// NoiseMultiplierFor uses binary search. The result will deviate from
// the smallest sufficient noise multiplier σ_tight by at most
// calibrationAccuracy*σ_tight, always erring on the noisier side.
func NoiseMultiplierFor(epsilon, delta, sampleRate float64, steps int, m Mechanism) (float64, error) {
	if err := checks.CheckEpsilonStrict(epsilon); err != nil {
		return 0, err
	}
	if err := checks.CheckDeltaStrict(delta); err != nil {
		return 0, err
	}
	if err := checks.CheckSampleRate(sampleRate); err != nil {
		return 0, err
	}
	if steps <= 0 {
		return 0, fmt.Errorf("Steps is %d, must be strictly positive", steps)
	}
	if m == nil {
		m = NewRDP(nil)
	}

	epsilonAt := func(sigma float64) (float64, error) {
		history := make([]StepRecord, steps)
		for i := range history {
			history[i] = StepRecord{NoiseMultiplier: sigma, SampleRate: sampleRate}
		}
		return m.ComputeEpsilon(history, delta)
	}

	// The expended epsilon is decreasing with respect to sigma.
	// Increase upperBound until it actually satisfies the budget.
	upperBound := 1.0
	var lowerBound float64
	for {
		eps, err := epsilonAt(upperBound)
		if err != nil {
			return 0, err
		}
		if eps <= epsilon {
			break
		}
		lowerBound = upperBound
		upperBound = upperBound * 2
		if upperBound > noiseMultiplierBound {
			return 0, fmt.Errorf("no noise multiplier below %e satisfies epsilon %f and delta %e over %d steps at sample rate %f",
				noiseMultiplierBound, epsilon, delta, steps, sampleRate)
		}
	}

	for upperBound-lowerBound > calibrationAccuracy*upperBound {
		middle := lowerBound*0.5 + upperBound*0.5
		eps, err := epsilonAt(middle)
		if err != nil {
			return 0, err
		}
		if eps > epsilon {
			lowerBound = middle
		} else {
			upperBound = middle
		}
	}

	return upperBound, nil
}
