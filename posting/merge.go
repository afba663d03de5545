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

package posting

import (
	"github.com/sneller-labs/sidx/heap"
)

// Source is a single sorted (by row_id ascending) stream of
// unquantized (row_id, weight) pairs contributed by one input segment
// to a K-way posting merge. Implementations are expected to already
// have decompressed/unquantized their weights to OW before Merge sees
// them, since different input segments may use different
// QuantizedParams (spec §4.7 step 3).
type Source interface {
	// Peek returns the current element without advancing, or
	// ok == false if the source is exhausted.
	Peek() (rowID uint32, w float32, ok bool)
	// Advance moves to the next element.
	Advance()
}

type heapEntry struct {
	rowID uint32
	w     float32
	src   int
}

func lessEntry(a, b heapEntry) bool {
	if a.rowID != b.rowID {
		return a.rowID < b.rowID
	}
	// tie-break: the higher source index is "smaller" so it is
	// popped (and therefore wins) first among colliding row_ids,
	// implementing the spec's "later segment's value wins" rule.
	return a.src > b.src
}

// Merge performs the K-way merge described in spec §4.3 "Posting merge
// for compaction": it consumes sources (which must be sorted and are
// assumed, per spec §4.7, not to be concurrently mutated) and returns
// one merged List. Duplicate row_ids across sources resolve to the
// value contributed by the source with the highest index in srcs
// (interpreted as "the later segment").
func Merge(srcs []Source, kind Kind) *List {
	h := make([]heapEntry, 0, len(srcs))
	for i, s := range srcs {
		if rid, w, ok := s.Peek(); ok {
			h = append(h, heapEntry{rowID: rid, w: w, src: i})
		}
	}
	heap.OrderSlice(h, lessEntry)

	out := &List{}
	haveLast := false
	var lastRowID uint32
	for len(h) > 0 {
		e := heap.PopSlice(&h, lessEntry)
		if !haveLast || e.rowID != lastRowID {
			out.RowIDs = append(out.RowIDs, e.rowID)
			out.Weights = append(out.Weights, e.w)
			lastRowID = e.rowID
			haveLast = true
		}
		srcs[e.src].Advance()
		if rid, w, ok := srcs[e.src].Peek(); ok {
			heap.PushSlice(&h, heapEntry{rowID: rid, w: w, src: e.src}, lessEntry)
		}
	}
	if kind == Extended {
		out.backfillMaxNext()
	}
	return out
}

// SliceSource adapts an in-memory List into a Source, used both in
// tests and by the merger when one of its inputs is a plain mmap
// segment whose posting has already been fully materialized.
type SliceSource struct {
	rowIDs  []uint32
	weights []float32
	pos     int
}

// NewSliceSource returns a Source over parallel rowIDs/weights slices,
// which must already be sorted by rowID ascending.
func NewSliceSource(rowIDs []uint32, weights []float32) *SliceSource {
	return &SliceSource{rowIDs: rowIDs, weights: weights}
}

func (s *SliceSource) Peek() (uint32, float32, bool) {
	if s.pos >= len(s.rowIDs) {
		return 0, 0, false
	}
	return s.rowIDs[s.pos], s.weights[s.pos], true
}

func (s *SliceSource) Advance() {
	if s.pos < len(s.rowIDs) {
		s.pos++
	}
}
