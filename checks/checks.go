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

// Package checks contains checks for privacy accounting parameters.
package checks

import (
	"fmt"
	"math"
)

const (
	epsilonName         = "Epsilon"
	deltaName           = "Delta"
	noiseMultiplierName = "NoiseMultiplier"
	sampleRateName      = "SampleRate"
	iterationsName      = "IterationsFactor"
	ordersName          = "Orders"
)

func verifyName(defaultName string, nameSlice []string) (string, error) {
	var name string
	switch len(nameSlice) {
	case 0:
		name = defaultName
	case 1:
		name = nameSlice[0]
	default:
		return "", fmt.Errorf("This should never happen. There should be 0 or 1 'name' parameter, got %d", len(nameSlice))
	}
	return name, nil
}

// CheckEpsilonStrict returns an error if ε is nonpositive or +∞.
func CheckEpsilonStrict(epsilon float64, name ...string) error {
	epsName, err := verifyName(epsilonName, name)
	if err != nil {
		return err
	}
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("%s is %f, must be strictly positive and finite", epsName, epsilon)
	}
	return nil
}

// CheckDeltaStrict returns an error if δ is nonpositive or greater than or equal to 1.
func CheckDeltaStrict(delta float64, name ...string) error {
	delName, err := verifyName(deltaName, name)
	if err != nil {
		return err
	}
	if math.IsNaN(delta) {
		return fmt.Errorf("%s is %e, cannot be NaN", delName, delta)
	}
	if delta <= 0 {
		return fmt.Errorf("%s is %e, must be strictly positive", delName, delta)
	}
	if delta >= 1 {
		return fmt.Errorf("%s is %e, must be strictly less than 1", delName, delta)
	}
	return nil
}

// CheckNoiseMultiplier returns an error if the noise multiplier is
// nonpositive, ±∞ or NaN.
func CheckNoiseMultiplier(noiseMultiplier float64, name ...string) error {
	nmName, err := verifyName(noiseMultiplierName, name)
	if err != nil {
		return err
	}
	if noiseMultiplier <= 0 || math.IsInf(noiseMultiplier, 0) || math.IsNaN(noiseMultiplier) {
		return fmt.Errorf("%s is %f, must be strictly positive and finite", nmName, noiseMultiplier)
	}
	return nil
}

// CheckSampleRate returns an error if the sample rate is outside (0, 1].
func CheckSampleRate(sampleRate float64, name ...string) error {
	srName, err := verifyName(sampleRateName, name)
	if err != nil {
		return err
	}
	if math.IsNaN(sampleRate) {
		return fmt.Errorf("%s is %e, cannot be NaN", srName, sampleRate)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%s is %e, must be strictly positive", srName, sampleRate)
	}
	if sampleRate > 1 {
		return fmt.Errorf("%s is %e, must be at most 1", srName, sampleRate)
	}
	return nil
}

// CheckIterationsFactor returns an error if the iterations factor is
// nonpositive, ±∞ or NaN.
func CheckIterationsFactor(iterationsFactor float64, name ...string) error {
	itName, err := verifyName(iterationsName, name)
	if err != nil {
		return err
	}
	if iterationsFactor <= 0 || math.IsInf(iterationsFactor, 0) || math.IsNaN(iterationsFactor) {
		return fmt.Errorf("%s is %f, must be strictly positive and finite", itName, iterationsFactor)
	}
	return nil
}

// CheckOrders returns an error if the slice of Rényi orders is empty or
// contains an order that is not strictly greater than 1 and finite.
func CheckOrders(orders []float64, name ...string) error {
	ordName, err := verifyName(ordersName, name)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return fmt.Errorf("%s is empty, must contain at least one order", ordName)
	}
	for _, order := range orders {
		if order <= 1 || math.IsInf(order, 0) || math.IsNaN(order) {
			return fmt.Errorf("%s contains %f, every order must be strictly greater than 1 and finite", ordName, order)
		}
	}
	return nil
}
