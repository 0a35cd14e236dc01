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

import "errors"

// Errors returned by accounting operations. All of them signal a
// caller-correctable input problem detected before any state mutation;
// none is retried or recovered internally. Use errors.Is to test for
// them; the returned errors carry additional detail.
var (
	// ErrInvalidStepParameters signals a nonpositive noise multiplier or
	// a sample rate outside (0, 1] passed to Step. The ledger is left
	// unchanged.
	ErrInvalidStepParameters = errors.New("accounting: invalid step parameters")
	// ErrInvalidDelta signals a δ outside (0, 1) passed to an epsilon
	// query. No ledger access occurs.
	ErrInvalidDelta = errors.New("accounting: invalid delta")
	// ErrMechanismMismatch signals an attempt to treat accountants that
	// use different composition mechanisms as compatible, e.g. before
	// combining per-worker ledgers.
	ErrMechanismMismatch = errors.New("accounting: mechanism mismatch")
)
