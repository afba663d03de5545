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
	"testing"

	"github.com/sneller-labs/sidx/packedints"
	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/weight"
)

func TestCompressedRoundTripF32Extended(t *testing.T) {
	dir := t.TempDir()
	idx := sampleIndex(t, posting.Extended)
	if err := WriteCompressed(dir, "seg", idx, posting.Extended, weight.F32, false, ""); err != nil {
		t.Fatal(err)
	}
	r, err := OpenCompressed(dir, "seg")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	l, ok, err := r.Dim(5)
	if err != nil || !ok {
		t.Fatalf("dim 5: ok=%v err=%v", ok, err)
	}
	if len(l.RowIDs) != 2 || l.RowIDs[0] != 1 || l.RowIDs[1] != 2 {
		t.Fatalf("unexpected row_ids: %v", l.RowIDs)
	}
	if l.Weights[0] != 0.8 || l.Weights[1] != -2.0 {
		t.Fatalf("unexpected weights: %v", l.Weights)
	}
}

func TestCompressedRoundTripWithArchive(t *testing.T) {
	dir := t.TempDir()
	idx := sampleIndex(t, posting.Simple)
	if err := WriteCompressed(dir, "seg", idx, posting.Simple, weight.F32, false, "zstd"); err != nil {
		t.Fatal(err)
	}
	r, err := OpenCompressed(dir, "seg")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	l, ok, err := r.Dim(1)
	if err != nil || !ok {
		t.Fatalf("dim 1: ok=%v err=%v", ok, err)
	}
	if len(l.RowIDs) != 2 || l.Weights[0] != 0.5 || l.Weights[1] != 9.0 {
		t.Fatalf("unexpected decode: %v", l)
	}
}

func TestCompressedBlockBoundary(t *testing.T) {
	dir := t.TempDir()
	b := ramindex.NewBuilder()
	for rid := uint32(0); rid < uint32(packedints.BlockSize); rid++ {
		if _, err := b.Add(rid, []ramindex.Pair{{Dim: 1, Weight: float32(rid)}}); err != nil {
			t.Fatal(err)
		}
	}
	idx, err := b.Build(posting.Simple)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteCompressed(dir, "seg", idx, posting.Simple, weight.F32, false, ""); err != nil {
		t.Fatal(err)
	}
	r, err := OpenCompressed(dir, "seg")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	l, ok, err := r.Dim(1)
	if err != nil || !ok {
		t.Fatalf("dim 1: ok=%v err=%v", ok, err)
	}
	if len(l.RowIDs) != packedints.BlockSize {
		t.Fatalf("expected exactly %d rows with no tail block, got %d", packedints.BlockSize, len(l.RowIDs))
	}
	for i, rid := range l.RowIDs {
		if rid != uint32(i) || l.Weights[i] != float32(i) {
			t.Fatalf("row %d: got (%d,%v)", i, rid, l.Weights[i])
		}
	}
}
