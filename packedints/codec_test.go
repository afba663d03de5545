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

package packedints

import (
	"reflect"
	"testing"
)

func TestBitWidth(t *testing.T) {
	cases := []struct {
		max  uint32
		want uint8
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 2},
		{4, 3},
		{255, 8},
		{256, 9},
	}
	for _, c := range cases {
		if got := BitWidth(c.max); got != c.want {
			t.Errorf("BitWidth(%d) = %d, want %d", c.max, got, c.want)
		}
	}
}

func TestBlockRoundTrip(t *testing.T) {
	rowIDs := make([]uint32, BlockSize)
	id := uint32(5)
	for i := range rowIDs {
		id += uint32(i%7) + 1
		rowIDs[i] = id
	}
	enc, numBits := EncodeBlockFromRowIDs(nil, rowIDs, 4)
	got, n, err := DecodeBlockToRowIDs(nil, enc, len(rowIDs), numBits, 4)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d bytes, expected %d", n, len(enc))
	}
	if !reflect.DeepEqual(got, rowIDs) {
		t.Fatalf("round trip mismatch: got %v want %v", got, rowIDs)
	}
}

func TestBlockAllZeroDeltas(t *testing.T) {
	rowIDs := []uint32{0}
	enc, numBits := EncodeBlockFromRowIDs(nil, rowIDs, 0)
	if numBits != 0 {
		t.Fatalf("all-zero deltas should need numBits=0, got %d", numBits)
	}
	got, _, err := DecodeBlockToRowIDs(nil, enc, 1, numBits, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, rowIDs) {
		t.Fatalf("got %v want %v", got, rowIDs)
	}
}

func TestTailVarintRoundTrip(t *testing.T) {
	rowIDs := []uint32{10, 11, 15, 1000, 1000000}
	deltas := Deltas(nil, rowIDs, 9)
	enc := EncodeTail(nil, deltas)
	gotDeltas, n, err := DecodeTail(nil, enc, len(deltas))
	if err != nil {
		t.Fatal(err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, expected %d", n, len(enc))
	}
	got := Undeltas(nil, gotDeltas, 9)
	if !reflect.DeepEqual(got, rowIDs) {
		t.Fatalf("got %v want %v", got, rowIDs)
	}
}

func TestDecodeBlockTruncated(t *testing.T) {
	_, _, err := DecodeBlock(nil, []byte{0x01}, 100, 8)
	if err == nil {
		t.Fatal("expected error for truncated block")
	}
}
