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
	log "github.com/golang/glog"
)

const rdpName = "rdp"

// defaultOrders is the default candidate set of Rényi orders. All
// candidates are integers so that the subsampled Gaussian Rényi
// divergence can be evaluated exactly via its binomial expansion; the
// large trailing orders keep the conversion tight for very small
// sample rates.
var defaultOrders = func() []float64 {
	orders := make([]float64, 0, 67)
	for alpha := 2; alpha <= 64; alpha++ {
		orders = append(orders, float64(alpha))
	}
	return append(orders, 128, 256, 512, 1024)
}()

// rdpMechanism composes the history in Rényi differential privacy and
// converts the result to an (ε,δ) bound.
type rdpMechanism struct {
	orders []float64
}

// RDPOptions contains the options necessary to initialize the rdp
// mechanism.
type RDPOptions struct {
	// Orders is the candidate set of Rényi orders searched when
	// converting to (ε,δ). Defaults to the integers 2..64 plus
	// {128, 256, 512, 1024}. Non-integer candidates are excluded from
	// the search, since only integer orders are evaluated exactly.
	Orders []float64
}

// NewRDP returns a Mechanism that tracks privacy expenditure as Rényi
// differential privacy of the subsampled Gaussian mechanism.
//
// Per step, the Rényi divergence at each candidate order is computed
// exactly via the binomial expansion of the subsampled Gaussian moment
// bound; steps compose by summation per order. The reported ε is the
// minimum over all valid candidate orders of the Rényi-to-(ε,δ)
// conversion of Balle et al. (https://arxiv.org/abs/2004.00010),
// clamped at 0. Candidates at which the divergence is undefined or
// infinite are excluded from the minimum; if no candidate is valid,
// ComputeEpsilon returns +∞.
//
// ComputeEpsilon honors the WithOrders query option.
func NewRDP(opt *RDPOptions) Mechanism {
	if opt == nil {
		opt = &RDPOptions{}
	}
	orders := opt.Orders
	if len(orders) == 0 {
		orders = defaultOrders
	} else if err := checks.CheckOrders(orders); err != nil {
		log.Warningf("NewRDP: invalid orders (%v), using default orders", err)
		orders = defaultOrders
	}
	return &rdpMechanism{orders: orders}
}

func (m *rdpMechanism) Name() string {
	return rdpName
}

func (m *rdpMechanism) ComputeEpsilon(history []StepRecord, delta float64, opts ...QueryOption) (float64, error) {
	if err := checks.CheckDeltaStrict(delta); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	if len(history) == 0 {
		return 0, nil
	}
	orders := m.orders
	if o := evalQueryOptions(opts); o.orders != nil {
		if err := checks.CheckOrders(o.orders); err != nil {
			return 0, fmt.Errorf("rdp: %v", err)
		}
		orders = o.orders
	}

	grouped := groupSteps(history)
	eps := math.Inf(1)
	for _, order := range orders {
		alpha := int(order)
		if float64(alpha) != order {
			continue // only integer orders are evaluated exactly
		}
		var rdp float64
		for i, r := range grouped.records {
			rdp += float64(grouped.counts[i]) * subsampledGaussianRDP(r.SampleRate, r.NoiseMultiplier, alpha)
		}
		if math.IsInf(rdp, 0) || math.IsNaN(rdp) {
			continue
		}
		orderEps := rdpToEpsilon(rdp, order, delta)
		if orderEps < eps {
			eps = orderEps
		}
	}
	if math.IsInf(eps, 1) {
		return eps, nil
	}
	return math.Max(0, eps), nil
}

// rdpToEpsilon converts an (α, RDP) guarantee into the ε of an
// (ε,δ)-DP guarantee, using the conversion of Balle et al. 2020, which
// improves on the classic ε = RDP + log(1/δ)/(α-1) bound.
func rdpToEpsilon(rdp, order, delta float64) float64 {
	return rdp - (math.Log(delta)+math.Log(order))/(order-1) + math.Log1p(-1/order)
}

// subsampledGaussianRDP returns the Rényi divergence of order alpha
// incurred by one step of the Poisson-subsampled Gaussian mechanism
// with sample rate q and noise multiplier sigma.
func subsampledGaussianRDP(q, sigma float64, alpha int) float64 {
	if q <= 0 {
		return 0
	}
	if sigma <= 0 {
		return math.Inf(1)
	}
	if q >= 1 {
		// No subsampling amplification: plain Gaussian mechanism.
		return float64(alpha) / (2 * sigma * sigma)
	}

	// log of the alpha-th moment of the privacy loss,
	//   A(alpha) = sum_{i=0}^{alpha} C(alpha,i) q^i (1-q)^(alpha-i) exp((i²-i)/(2σ²)),
	// accumulated in log space to avoid overflow.
	logA := math.Inf(-1)
	for i := 0; i <= alpha; i++ {
		term := logBinom(alpha, i) +
			float64(i)*math.Log(q) +
			float64(alpha-i)*math.Log1p(-q) +
			float64(i*i-i)/(2*sigma*sigma)
		logA = logAddExp(logA, term)
	}
	return logA / float64(alpha-1)
}

// logBinom returns log(C(n, k)).
func logBinom(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}

// logAddExp returns log(exp(a) + exp(b)) without overflowing for large
// a or b.
func logAddExp(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	max, min := a, b
	if b > a {
		max, min = b, a
	}
	return max + math.Log1p(math.Exp(min-max))
}
