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

package ramindex

import (
	"math"
	"testing"

	"github.com/sneller-labs/sidx/posting"
)

func TestAddAndBuild(t *testing.T) {
	b := NewBuilder()
	ok, err := b.Add(0, []Pair{{1, 0.5}, {3, 1.0}})
	if !ok || err != nil {
		t.Fatalf("add(0): ok=%v err=%v", ok, err)
	}
	ok, err = b.Add(1, []Pair{{3, 0.2}, {5, 0.8}})
	if !ok || err != nil {
		t.Fatalf("add(1): ok=%v err=%v", ok, err)
	}

	idx, err := b.Build(posting.Simple)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Metrics.VectorCount != 2 {
		t.Fatalf("vector_count = %d, want 2", idx.Metrics.VectorCount)
	}
	if idx.Metrics.MinDimID != 1 || idx.Metrics.MaxDimID != 5 {
		t.Fatalf("dim range = [%d,%d], want [1,5]", idx.Metrics.MinDimID, idx.Metrics.MaxDimID)
	}
	l := idx.Postings[3]
	if l == nil || len(l.RowIDs) != 2 {
		t.Fatalf("dim 3 posting missing or wrong length")
	}
}

func TestNonMonotonicRowIDIsNoOp(t *testing.T) {
	b := NewBuilder()
	ok, _ := b.Add(5, []Pair{{1, 1}})
	if !ok {
		t.Fatal("first add should succeed")
	}
	ok, err := b.Add(5, []Pair{{1, 2}})
	if ok || err != nil {
		t.Fatalf("repeat row_id should be a silent no-op: ok=%v err=%v", ok, err)
	}
	ok, err = b.Add(3, []Pair{{1, 2}})
	if ok || err != nil {
		t.Fatalf("lower row_id should be a silent no-op: ok=%v err=%v", ok, err)
	}
}

func TestEmptyVectorIsNoOp(t *testing.T) {
	b := NewBuilder()
	ok, err := b.Add(0, nil)
	if !ok || err != nil {
		t.Fatalf("empty vector insert should succeed: ok=%v err=%v", ok, err)
	}
	idx, _ := b.Build(posting.Simple)
	if len(idx.Postings) != 0 {
		t.Fatalf("empty vector should not create postings")
	}
}

func TestNaNWeightRejected(t *testing.T) {
	b := NewBuilder()
	_, err := b.Add(0, []Pair{{1, float32(math.NaN())}})
	if err == nil {
		t.Fatal("expected error for NaN weight")
	}
}

func TestNonIncreasingDimsRejected(t *testing.T) {
	b := NewBuilder()
	_, err := b.Add(0, []Pair{{3, 1}, {1, 1}})
	if err == nil {
		t.Fatal("expected error for non-increasing dims")
	}
}

func TestSortedDims(t *testing.T) {
	b := NewBuilder()
	b.Add(0, []Pair{{5, 1}, {9, 1}})
	b.Add(1, []Pair{{1, 1}, {3, 1}})
	idx, _ := b.Build(posting.Simple)
	got := idx.SortedDims()
	want := []uint32{1, 3, 5, 9}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("SortedDims()=%v want %v", got, want)
		}
	}
}
