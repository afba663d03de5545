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

// Deltas computes the deltas of rowIDs against pred (the block's
// row_id_start - 1, saturating at 0), as required for a block's
// bit-packed or varint-tail encoding.
func Deltas(dst []uint32, rowIDs []uint32, pred uint32) []uint32 {
	prev := pred
	for _, r := range rowIDs {
		dst = append(dst, r-prev)
		prev = r
	}
	return dst
}

// Undeltas is the inverse of Deltas: it reconstructs row_ids from
// deltas given the same predecessor.
func Undeltas(dst []uint32, deltas []uint32, pred uint32) []uint32 {
	prev := pred
	for _, d := range deltas {
		prev += d
		dst = append(dst, prev)
	}
	return dst
}

// MaxUint32 returns the largest value in vs, or 0 if vs is empty.
func MaxUint32(vs []uint32) uint32 {
	var m uint32
	for _, v := range vs {
		if v > m {
			m = v
		}
	}
	return m
}

// EncodeBlockFromRowIDs is a convenience wrapper that delta-encodes
// rowIDs against pred and bit-packs the result, returning the updated
// dst and the chosen bit width. It always uses bit-packing, whatever
// len(rowIDs) is; EncodeTail is the varint encoding for a partial
// (< BlockSize) chunk.
func EncodeBlockFromRowIDs(dst []byte, rowIDs []uint32, pred uint32) (out []byte, numBits uint8) {
	deltas := Deltas(make([]uint32, 0, len(rowIDs)), rowIDs, pred)
	width := BitWidth(MaxUint32(deltas))
	return EncodeBlock(dst, deltas, width), width
}

// DecodeBlockToRowIDs is the inverse of EncodeBlockFromRowIDs.
func DecodeBlockToRowIDs(dst []uint32, src []byte, count int, numBits uint8, pred uint32) ([]uint32, int, error) {
	deltas, n, err := DecodeBlock(make([]uint32, 0, count), src, count, numBits)
	if err != nil {
		return dst, 0, err
	}
	return Undeltas(dst, deltas, pred), n, nil
}

// DecodeBlockToRowIDsViaTail is the inverse of EncodeTail followed by a
// Deltas/Undeltas round trip: it decodes count varint-encoded deltas
// from src and reconstructs row_ids against pred, the encoding used for
// a posting's trailing partial (< BlockSize) block.
func DecodeBlockToRowIDsViaTail(src []byte, count int, pred uint32) ([]uint32, int, error) {
	deltas, n, err := DecodeTail(make([]uint32, 0, count), src, count)
	if err != nil {
		return nil, 0, err
	}
	return Undeltas(make([]uint32, 0, count), deltas, pred), n, nil
}
