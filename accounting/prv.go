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
	"math/cmplx"

	"github.com/abouhadid/opacus-V112/checks"
	log "github.com/golang/glog"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat/distuv"
)

const prvName = "prv"

// maxGridSize bounds the number of discretization points of the
// privacy loss distribution. Finer grids give tighter bounds but the
// FFT cost grows linearly in the grid size.
const maxGridSize = 1 << 22

// prvMechanism composes the history by numerically convolving the
// privacy loss distributions of the individual steps.
type prvMechanism struct {
	epsError   float64
	deltaError float64
}

// PRVOptions contains the options necessary to initialize the prv
// mechanism.
type PRVOptions struct {
	// EpsError bounds the slack that discretization may add to the
	// returned ε. Defaults to 0.01.
	EpsError float64
	// DeltaError is the probability mass budget for truncating the
	// privacy loss distribution to a finite domain. Defaults to a
	// thousandth of the queried δ.
	DeltaError float64
}

// NewPRV returns a Mechanism that composes the history by convolving
// the privacy loss random variables (PRVs) of the individual steps
// (Gopi, Lee and Wutschitz, https://arxiv.org/abs/2106.02848).
//
// Per distinct (noise multiplier, sample rate) pair, the distribution
// of the subsampled Gaussian privacy loss is discretized onto a shared
// grid; self-compositions and cross-compositions are carried out with
// FFTs. Probability mass is always rounded towards larger loss, and
// mass truncated by the finite grid is charged to δ, so the returned ε
// is an upper bound carrying at most EpsError of discretization slack
// plus the relative accuracy of the final bisection. For long
// homogeneous histories the bound is typically noticeably tighter than
// the rdp mechanism's.
//
// ComputeEpsilon ignores the WithOrders query option.
func NewPRV(opt *PRVOptions) Mechanism {
	if opt == nil {
		opt = &PRVOptions{}
	}
	epsError := opt.EpsError
	if epsError == 0 {
		epsError = 0.01
	}
	return &prvMechanism{epsError: epsError, deltaError: opt.DeltaError}
}

func (m *prvMechanism) Name() string {
	return prvName
}

func (m *prvMechanism) ComputeEpsilon(history []StepRecord, delta float64, opts ...QueryOption) (float64, error) {
	if err := checks.CheckDeltaStrict(delta); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	if len(history) == 0 {
		return 0, nil
	}
	for _, r := range history {
		if r.NoiseMultiplier <= 0 {
			return math.Inf(1), nil
		}
	}
	deltaError := m.deltaError
	if deltaError == 0 {
		deltaError = delta / 1000
	}

	// The grid must cover the privacy loss of the full composition.
	// A Rényi bound at a small fraction of δ gives a domain outside of
	// which the composed loss lands with probability at most that
	// fraction; the wrapped-around remainder is charged to δ below.
	domainBound, err := NewRDP(nil).ComputeEpsilon(history, deltaError/2)
	if err != nil {
		return 0, err
	}
	if math.IsInf(domainBound, 1) {
		return domainBound, nil
	}
	domain := math.Max(3, domainBound+2)

	// Pessimistic rounding moves each step's loss up by at most one
	// cell, so the mesh shrinks with the step count to keep the total
	// shift within epsError.
	mesh := m.epsError / float64(len(history))
	n := gridSize(domain, mesh)
	if n == maxGridSize {
		log.Warningf("prv.ComputeEpsilon: grid size capped at %d points, epsilon may exceed its error bound", n)
	}
	mesh = 2 * domain / float64(n)

	grouped := groupSteps(history)
	fft := fourier.NewFFT(n)
	var composed []complex128
	deltaCharge := deltaError
	for i, r := range grouped.records {
		pmf, upperTail := stepPMF(r.NoiseMultiplier, r.SampleRate, n, mesh)
		// Union bound over the copies of this step whose loss falls
		// beyond the grid.
		deltaCharge += float64(grouped.counts[i]) * upperTail
		coeffs := fft.Coefficients(nil, pmf)
		for j := range coeffs {
			coeffs[j] = cmplx.Pow(coeffs[j], complex(float64(grouped.counts[i]), 0))
		}
		if composed == nil {
			composed = coeffs
			continue
		}
		for j := range composed {
			composed[j] *= coeffs[j]
		}
	}
	pmf := fft.Sequence(nil, composed)
	for j := range pmf {
		pmf[j] /= float64(n)
		if pmf[j] < 0 { // FFT round-off
			pmf[j] = 0
		}
	}

	return epsilonForPMF(pmf, n, mesh, delta, deltaCharge, m.epsError), nil
}

// gridSize returns the number of grid points needed to cover
// (-domain, domain] at the given mesh, rounded up to a power of two
// for the FFT and capped at maxGridSize.
func gridSize(domain, mesh float64) int {
	points := 2 * domain / mesh
	n := 1
	for float64(n) < points && n < maxGridSize {
		n *= 2
	}
	return n
}

// gridValue maps a grid index to the privacy loss it represents. The
// grid stores losses on a circle of circumference 2·domain: indices up
// to n/2 are nonnegative losses, the rest wrap around to negative
// losses. Index addition modulo n then matches loss addition for every
// composition whose total stays inside (-domain, domain].
func gridValue(j, n int, mesh float64) float64 {
	if j <= n/2 {
		return float64(j) * mesh
	}
	return float64(j-n) * mesh
}

// stepPMF discretizes the privacy loss distribution of one subsampled
// Gaussian step onto the grid. The mass of each cell is assigned to the
// cell's upper edge, and mass below the grid is lumped into the lowest
// cell, so the discretized loss is stochastically larger than the true
// loss. The returned upperTail is the mass beyond the upper end of the
// grid, which the caller must account for in δ.
func stepPMF(sigma, q float64, n int, mesh float64) (pmf []float64, upperTail float64) {
	pmf = make([]float64, n)
	domain := float64(n/2) * mesh
	prev := 0.0
	for k := 0; k < n; k++ {
		z := -domain + float64(k+1)*mesh
		cur := privacyLossCDF(z, sigma, q)
		j := (k + 1 - n/2 + n) % n
		pmf[j] = cur - prev
		prev = cur
	}
	return pmf, 1 - prev
}

// privacyLossCDF returns P(Z ≤ z) for the privacy loss random variable
// Z of one Poisson-subsampled Gaussian step with noise multiplier
// sigma and sample rate q, under the mixture (worst-case) distribution.
//
// The loss at outcome t is ℓ(t) = log((1-q) + q·exp((2t-1)/(2σ²))),
// which is strictly increasing in t, so the CDF follows by inverting ℓ
// and evaluating the mixture CDF at t(z).
func privacyLossCDF(z, sigma, q float64) float64 {
	if q >= 1 {
		// ℓ(t) = (2t-1)/(2σ²), hence Z ~ N(1/(2σ²), 1/σ²).
		return distuv.UnitNormal.CDF(sigma*z - 1/(2*sigma))
	}
	logOneMinusQ := math.Log1p(-q)
	if z <= logOneMinusQ {
		return 0
	}
	// t(z) = σ²·log((exp(z) - (1-q))/q) + 1/2, rearranged through
	// expm1 so that the subtraction stays accurate near the lower
	// support boundary.
	shifted := z - logOneMinusQ
	var logArg float64
	if shifted > 30 {
		logArg = z - math.Log(q)
	} else {
		logArg = logOneMinusQ + math.Log(math.Expm1(shifted)) - math.Log(q)
	}
	t := sigma*sigma*logArg + 0.5
	return (1-q)*distuv.UnitNormal.CDF(t/sigma) + q*distuv.UnitNormal.CDF((t-1)/sigma)
}

// deltaForPMF evaluates the hockey-stick divergence
//   δ(ε) = E[(1 - exp(ε-Z))⁺]
// of the discretized privacy loss distribution, plus the probability
// mass charged for truncation.
func deltaForPMF(pmf []float64, n int, mesh, epsilon, deltaCharge float64) float64 {
	delta := deltaCharge
	for j := range pmf {
		z := gridValue(j, n, mesh)
		if z > epsilon && pmf[j] > 0 {
			delta += pmf[j] * -math.Expm1(epsilon-z)
		}
	}
	return delta
}

// epsilonForPMF calculates the smallest ε on the grid domain such that
// the composed privacy loss distribution satisfies the target δ, by
// bisection down to half the discretization error.
func epsilonForPMF(pmf []float64, n int, mesh, delta, deltaCharge, epsError float64) float64 {
	domain := float64(n/2) * mesh
	if deltaForPMF(pmf, n, mesh, 0, deltaCharge) <= delta {
		return 0
	}
	if deltaForPMF(pmf, n, mesh, domain, deltaCharge) > delta {
		log.Warningf("prv.ComputeEpsilon: privacy loss exceeds the grid domain %f, returning +Inf", domain)
		return math.Inf(1)
	}
	var lowerBound float64
	upperBound := domain
	for upperBound-lowerBound > epsError/2 {
		middle := lowerBound*0.5 + upperBound*0.5
		if deltaForPMF(pmf, n, mesh, middle, deltaCharge) > delta {
			lowerBound = middle
		} else {
			upperBound = middle
		}
	}
	return upperBound
}
