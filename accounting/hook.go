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

// StepHook reports one privacy-relevant event to an accountant on
// behalf of an external training loop. iterationsFactor is the number
// of micro-iterations folded into the reported event, e.g. the
// gradient-accumulation count; it is usually 1.
type StepHook func(noiseMultiplier, iterationsFactor float64) error

// StepHook returns a hook bound to the given expected sample rate. Each
// invocation performs exactly one Step call with the effective sample
// rate expectedSampleRate * iterationsFactor.
//
// The scaling isolates distributed and gradient-accumulation setups
// from the accountant's bookkeeping: when several micro-iterations are
// folded into one reported event, the effective per-event sample rate
// grows accordingly. The hook holds no state beyond the captured rate
// and the accountant it reports to, and must not outlive it.
func (a *Accountant) StepHook(expectedSampleRate float64) StepHook {
	return func(noiseMultiplier, iterationsFactor float64) error {
		if err := checks.CheckIterationsFactor(iterationsFactor); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidStepParameters, err)
		}
		return a.Step(noiseMultiplier, expectedSampleRate*iterationsFactor)
	}
}
