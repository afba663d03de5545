// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package weight

import "math"

// QuantizedParam is the per-posting (min, step) pair that maps an
// original float weight to and from a u8 storage weight via uniform
// linear quantization (spec §3, §4.1).
type QuantizedParam struct {
	Min  float32 `json:"min"`
	Step float32 `json:"step"`
}

// GenParams derives the quantization parameters for a posting whose
// unquantized weights range over [min, max]. A degenerate posting
// (min == max, including the empty-posting case where callers should
// pass min == max == 0) produces a zero step.
func GenParams(min, max float32) QuantizedParam {
	if max <= min {
		return QuantizedParam{Min: min, Step: 0}
	}
	return QuantizedParam{Min: min, Step: (max - min) / 255}
}

// Quantize maps v into [0,255] using p. A degenerate (step == 0)
// posting always quantizes to 0.
func Quantize(v float32, p QuantizedParam) uint8 {
	if p.Step == 0 {
		return 0
	}
	q := math.Round(float64(clamp((v-p.Min)/p.Step, 0, 255)))
	return uint8(q)
}

// Unquantize is the inverse of Quantize. A degenerate (step == 0)
// posting always unquantizes to p.Min.
func Unquantize(q uint8, p QuantizedParam) float32 {
	if p.Step == 0 {
		return p.Min
	}
	return p.Min + float32(q)*p.Step
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
