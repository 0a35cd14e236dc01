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
	"math"

	"github.com/abouhadid/opacus-V112/checks"
	"gonum.org/v1/gonum/stat/distuv"
)

const gaussianMomentsName = "gaussian-moments"

// gdpEpsAccuracy approximates the relative accuracy up to which the
// smallest ε that satisfies the target δ is determined.
const gdpEpsAccuracy = 1e-3

// gaussianMomentsMechanism tracks privacy expenditure in Gaussian
// differential privacy via its moment parameter μ.
type gaussianMomentsMechanism struct{}

// NewGaussianMomentsMechanism returns a Mechanism that composes the
// history under Gaussian differential privacy (Dong, Roth and Su,
// https://arxiv.org/abs/1905.02383), using the central limit
// approximation for Poisson subsampling of Bu et al.
// (https://arxiv.org/abs/1911.11607).
//
// Each step contributes q²·(exp(1/σ²)-1) to μ²; the resulting μ-GDP
// guarantee is converted to the smallest (ε,δ) with δ matching the
// target, determined by binary search up to a relative accuracy of
// 1e-3 (the returned ε errs on the conservative side). Since the
// central limit approximation improves with the number of steps, the
// bound is approximate for very short histories; it is not a
// worst-case guarantee the way the rdp mechanism is.
//
// ComputeEpsilon ignores the WithOrders query option.
func NewGaussianMomentsMechanism() Mechanism {
	return gaussianMomentsMechanism{}
}

func (gaussianMomentsMechanism) Name() string {
	return gaussianMomentsName
}

func (gaussianMomentsMechanism) ComputeEpsilon(history []StepRecord, delta float64, opts ...QueryOption) (float64, error) {
	if err := checks.CheckDeltaStrict(delta); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	if len(history) == 0 {
		return 0, nil
	}

	var muSquared float64
	for _, r := range history {
		if r.NoiseMultiplier <= 0 {
			return math.Inf(1), nil
		}
		muSquared += r.SampleRate * r.SampleRate * math.Expm1(1/(r.NoiseMultiplier*r.NoiseMultiplier))
	}
	// Expm1 overflows for tiny noise multipliers; the resulting μ admits
	// no finite ε, and the bisection below must never run on it.
	if math.IsInf(muSquared, 1) {
		return math.Inf(1), nil
	}
	mu := math.Sqrt(muSquared)
	if mu == 0 {
		return 0, nil
	}
	return epsilonForMu(mu, delta), nil
}

// deltaForMu computes the δ such that a μ-GDP mechanism is
// (ε,δ)-differentially private. The conversion is Corollary 2.13 of
// Dong et al.:
//   δ(μ,ε) = Φ(-ε/μ + μ/2) - exp(ε)·Φ(-ε/μ - μ/2)
// with Φ the standard Gaussian CDF.
func deltaForMu(mu, epsilon float64) float64 {
	c := math.Exp(epsilon)
	if math.IsInf(c, 1) {
		// δ(μ,ε) –> 0 as ε –> ∞, so return 0.
		return 0
	}
	return distuv.UnitNormal.CDF(-epsilon/mu+mu/2) - c*distuv.UnitNormal.CDF(-epsilon/mu-mu/2)
}

// epsilonForMu calculates the smallest ε such that a μ-GDP mechanism
// is (ε,δ)-differentially private for the target δ.
//
// epsilonForMu uses binary search. The result will deviate from the
// exact value ε_tight by at most gdpEpsAccuracy*ε_tight.
func epsilonForMu(mu, delta float64) float64 {
	if deltaForMu(mu, 0) <= delta {
		return 0
	}

	// deltaForMu(mu, epsilon) is a decreasing function with respect to
	// epsilon, so the doubling terminates in O(log(ε_tight)) steps.
	upperBound := 1.0
	var lowerBound float64
	for deltaForMu(mu, upperBound) > delta {
		lowerBound = upperBound
		upperBound = upperBound * 2
	}

	for upperBound-lowerBound > gdpEpsAccuracy*upperBound {
		middle := lowerBound*0.5 + upperBound*0.5
		if deltaForMu(mu, middle) > delta {
			lowerBound = middle
		} else {
			upperBound = middle
		}
	}

	return upperBound
}
