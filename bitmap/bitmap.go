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

// Package bitmap implements the packed alive-row filter passed into a
// search: a row is alive iff its bit is set; any row_id past the end of
// the buffer is treated as not-alive (spec §4.8).
package bitmap

import "github.com/sneller-labs/sidx/ints"

// Bitmap is a packed bit vector indexed by row_id.
type Bitmap struct {
	bits []byte
}

// New returns an all-clear Bitmap sized to hold row_ids up to and
// including maxRow.
func New(maxRow uint32) *Bitmap {
	return &Bitmap{bits: make([]byte, maxRow/8+1)}
}

// FromRows builds a Bitmap from a set of alive row_ids, sizing the
// buffer to (max(rows)/8)+1 bytes in a single pass (spec §4.8).
func FromRows(rows []uint32) *Bitmap {
	if len(rows) == 0 {
		return &Bitmap{}
	}
	max := rows[0]
	for _, r := range rows[1:] {
		if r > max {
			max = r
		}
	}
	bm := New(max)
	for _, r := range rows {
		bm.Set(r)
	}
	return bm
}

// FromBytes wraps a raw packed bit vector (spec §6 "filter_bytes wire
// format") without copying it; an empty slice denotes "no filtering".
func FromBytes(b []byte) *Bitmap {
	return &Bitmap{bits: b}
}

// IsAlive reports whether row is set. Out-of-range rows are not-alive
// (spec §4.8, and §9's resolved open question: this differs from a
// "missing means alive" fallback some callers of the source assumed).
func (bm *Bitmap) IsAlive(row uint32) bool {
	if bm == nil || row/8 >= uint32(len(bm.bits)) {
		return false
	}
	return ints.TestBit(bm.bits, row)
}

// Set marks row alive. The caller must ensure row is within the
// buffer's range (New/FromRows size for this; FromBytes callers size
// their own buffer).
func (bm *Bitmap) Set(row uint32) {
	ints.SetBit(bm.bits, row)
}

// Bytes returns the underlying packed representation, suitable for
// persisting or handing back across the host boundary.
func (bm *Bitmap) Bytes() []byte {
	if bm == nil {
		return nil
	}
	return bm.bits
}

// Empty reports whether the filter carries no bytes, meaning "no
// filtering" per spec §6.
func (bm *Bitmap) Empty() bool {
	return bm == nil || len(bm.bits) == 0
}
