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

package segment

import (
	"math"
	"testing"

	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/weight"
)

func sampleIndex(t *testing.T, ekind posting.Kind) *ramindex.Index {
	t.Helper()
	b := ramindex.NewBuilder()
	vecs := map[uint32][]ramindex.Pair{
		0: {{Dim: 1, Weight: 0.5}, {Dim: 3, Weight: 1.0}},
		1: {{Dim: 3, Weight: 0.2}, {Dim: 5, Weight: 0.8}},
		2: {{Dim: 1, Weight: 9.0}, {Dim: 5, Weight: -2.0}},
	}
	for rid := uint32(0); rid <= 2; rid++ {
		if _, err := b.Add(rid, vecs[rid]); err != nil {
			t.Fatal(err)
		}
	}
	idx, err := b.Build(ekind)
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestPlainRoundTripF32Simple(t *testing.T) {
	dir := t.TempDir()
	idx := sampleIndex(t, posting.Simple)
	if err := WritePlain(dir, "seg", idx, posting.Simple, weight.F32, false); err != nil {
		t.Fatal(err)
	}
	r, err := OpenPlain(dir, "seg")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	l, ok, err := r.Dim(3)
	if err != nil || !ok {
		t.Fatalf("dim 3: ok=%v err=%v", ok, err)
	}
	if len(l.RowIDs) != 2 || l.RowIDs[0] != 0 || l.RowIDs[1] != 1 {
		t.Fatalf("unexpected row_ids: %v", l.RowIDs)
	}
	if l.Weights[0] != 1.0 || l.Weights[1] != 0.2 {
		t.Fatalf("unexpected weights: %v", l.Weights)
	}
	if l.MaxNext != nil {
		t.Fatal("Simple posting must not round-trip max_next_weight")
	}
}

func TestPlainRoundTripQuantizedExtended(t *testing.T) {
	dir := t.TempDir()
	idx := sampleIndex(t, posting.Extended)
	if err := WritePlain(dir, "seg", idx, posting.Extended, weight.U8, true); err != nil {
		t.Fatal(err)
	}
	r, err := OpenPlain(dir, "seg")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	l, ok, err := r.Dim(5)
	if err != nil || !ok {
		t.Fatalf("dim 5: ok=%v err=%v", ok, err)
	}
	want := []float32{0.8, -2.0}
	lo, hi := float32(-2.0), float32(0.8)
	step := (hi - lo) / 255
	for i, w := range want {
		if math.Abs(float64(l.Weights[i]-w)) > float64(step/2+1e-4) {
			t.Fatalf("weight %d: got %v want ~%v (step=%v)", i, l.Weights[i], w, step)
		}
	}
	// The u8 storage kind cannot represent -Inf, so the back-filled
	// sentinel (the original weight-type's minimum) quantizes down to
	// the dimension's own minimum weight -- still a safe lower bound
	// for WAND pruning since nothing follows the tail element.
	if math.Abs(float64(l.MaxNext[len(l.MaxNext)-1]-lo)) > float64(step/2+1e-4) {
		t.Fatalf("u8 tail max_next_weight should be ~%v, got %v", lo, l.MaxNext[len(l.MaxNext)-1])
	}
}

func TestPlainRoundTripEmptySegment(t *testing.T) {
	dir := t.TempDir()
	b := ramindex.NewBuilder()
	idx, err := b.Build(posting.Simple)
	if err != nil {
		t.Fatal(err)
	}
	if err := WritePlain(dir, "seg", idx, posting.Simple, weight.F32, false); err != nil {
		t.Fatal(err)
	}
	r, err := OpenPlain(dir, "seg")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if _, ok, _ := r.Dim(0); ok {
		t.Fatal("empty segment should have no postings")
	}
}
