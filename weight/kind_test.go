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

import (
	"math"
	"testing"
)

func TestF32RoundTrip(t *testing.T) {
	for _, v := range []float32{0, 1, -1, 0.5, 3.14159, 1e30, -1e-20} {
		got := F32.Float(F32.Bits(v))
		if got != v {
			t.Errorf("F32 round trip: got %v, want %v", got, v)
		}
	}
}

func TestF16RoundTrip(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, 2, -2, 10.5, 0.000001}
	for _, v := range cases {
		bits := F16.Bits(v)
		got := F16.Float(bits)
		if math.Abs(float64(got-v)) > 0.05*math.Abs(float64(v))+1e-3 {
			t.Errorf("F16 round trip: got %v, want %v", got, v)
		}
	}
}

func TestU8Minimum(t *testing.T) {
	if U8.Minimum() != 0 {
		t.Fatalf("u8 minimum sentinel must be 0, got %v", U8.Minimum())
	}
	if !math.IsInf(float64(F32.Minimum()), -1) {
		t.Fatalf("f32 minimum sentinel must be -Inf")
	}
}

func TestBytesRoundTrip(t *testing.T) {
	for _, k := range []Kind{F32, F16, U8} {
		buf := make([]byte, k.Size())
		bits := k.Bits(1.5)
		k.PutBytes(buf, bits)
		got := k.GetBytes(buf)
		if got != bits {
			t.Errorf("%v: bytes round trip: got %x, want %x", k, got, bits)
		}
	}
}

func TestQuantizeDegenerate(t *testing.T) {
	p := GenParams(3, 3)
	if p.Step != 0 {
		t.Fatalf("degenerate params should have step 0, got %v", p.Step)
	}
	if Quantize(3, p) != 0 {
		t.Fatalf("degenerate quantize should be 0")
	}
	if Unquantize(0, p) != 3 {
		t.Fatalf("degenerate unquantize should return min")
	}
}

func TestQuantizeRoundTripTolerance(t *testing.T) {
	p := GenParams(0, 10)
	for _, v := range []float32{0, 1, 2.5, 5, 7.3, 10} {
		q := Quantize(v, p)
		got := Unquantize(q, p)
		if math.Abs(float64(got-v)) > float64(p.Step)/2+1e-4 {
			t.Errorf("quantize(%v)=%v -> unquantize=%v exceeds tolerance step/2=%v", v, q, got, p.Step/2)
		}
	}
}

func TestQuantizeClamps(t *testing.T) {
	p := GenParams(0, 10)
	if Quantize(-5, p) != 0 {
		t.Fatalf("values below min should clamp to 0")
	}
	if Quantize(1000, p) != 255 {
		t.Fatalf("values above max should clamp to 255")
	}
}
