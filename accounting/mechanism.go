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
	log "github.com/golang/glog"
)

// Kind is an enum type. Its values are the supported composition
// mechanisms for privacy accounting.
type Kind int

// Composition mechanisms used to bound cumulative privacy loss.
const (
	RenyiDP Kind = iota
	GaussianMoments
	PRV
	Unrecognised
)

// ToMechanism converts a Kind into a Mechanism instance with default options.
func ToMechanism(k Kind) Mechanism {
	switch k {
	case RenyiDP:
		return NewRDP(nil)
	case GaussianMoments:
		return NewGaussianMomentsMechanism()
	case PRV:
		return NewPRV(nil)
	case Unrecognised:
		log.Warningf("ToMechanism: Unrecognised mechanism specified, returning nil")
	default:
		log.Warningf("ToMechanism: unknown kind (%v) specified, returning nil", k)
	}
	return nil
}

// ToKind converts a Mechanism instance into a Kind.
func ToKind(m Mechanism) Kind {
	if m == nil {
		log.Warningf("ToKind: nil mechanism specified, returning Unrecognised")
		return Unrecognised
	}
	switch m.Name() {
	case rdpName:
		return RenyiDP
	case gaussianMomentsName:
		return GaussianMoments
	case prvName:
		return PRV
	default:
		log.Warningf("ToKind: unknown Mechanism (%v) specified, returning Unrecognised", m.Name())
	}
	return Unrecognised
}

// Mechanism converts a recorded step history into a bound on the
// cumulative privacy loss.
//
// Implementations must be pure functions of their inputs: given the
// same history and delta, ComputeEpsilon always returns the same
// epsilon, carries no hidden state and is safe for concurrent use.
// Every implementation returns 0 for an empty history, since zero
// steps leak zero privacy.
type Mechanism interface {
	// ComputeEpsilon returns the smallest ε the mechanism can certify
	// such that the composed history is (ε,δ)-differentially private.
	// It fails if delta is outside (0, 1). The result may be +∞ when no
	// finite bound exists, e.g. for a vanishing noise multiplier.
	ComputeEpsilon(history []StepRecord, delta float64, opts ...QueryOption) (float64, error)

	// Name returns the stable identifier of the mechanism, e.g. "rdp".
	// Combining ledgers produced under different names invalidates the
	// composed bound, so callers must verify names before merging.
	Name() string
}

// QueryOption adjusts a single epsilon query. Options that a mechanism
// does not understand are ignored; each mechanism documents the options
// it honors.
type QueryOption func(*queryOptions)

type queryOptions struct {
	orders []float64
}

// WithOrders overrides the candidate set of Rényi orders used by the
// rdp mechanism for this query. Other mechanisms ignore it.
func WithOrders(orders []float64) QueryOption {
	return func(o *queryOptions) {
		o.orders = orders
	}
}

func evalQueryOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// groupedSteps is a step history deduplicated into distinct
// (noise multiplier, sample rate) pairs with multiplicities. Mechanism
// cost is usually linear in the number of distinct pairs rather than in
// the raw step count, since training loops typically keep both
// parameters constant for long stretches.
type groupedSteps struct {
	records []StepRecord
	counts  []int
}

func groupSteps(history []StepRecord) groupedSteps {
	var g groupedSteps
	index := make(map[StepRecord]int, 4)
	for _, r := range history {
		if i, ok := index[r]; ok {
			g.counts[i]++
			continue
		}
		index[r] = len(g.records)
		g.records = append(g.records, r)
		g.counts = append(g.counts, 1)
	}
	return g
}
