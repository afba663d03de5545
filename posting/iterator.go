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
	"sort"

	"github.com/sneller-labs/sidx/weight"
)

// Iterator walks a single posting list's elements in row_id order. It
// is the shape both the segment package's on-disk views and the search
// package's WAND scan consume (spec §4.9, "model as an explicit
// iterator object").
type Iterator struct {
	list *List
	pos  int
}

// NewIterator returns an Iterator positioned at the first element of l.
// l may be nil, which behaves like an empty list.
func NewIterator(l *List) *Iterator {
	return &Iterator{list: l}
}

// Peek returns the current element without advancing. ok is false once
// the iterator is exhausted. maxNext is the weight-type minimum
// sentinel for Simple postings (l.MaxNext == nil); such postings carry
// no bound on later weights, and the search package does not apply
// WAND pruning to them (spec §9).
func (it *Iterator) Peek() (rowID uint32, w float32, maxNext float32, ok bool) {
	if it.list == nil || it.pos >= len(it.list.RowIDs) {
		return 0, 0, 0, false
	}
	rowID = it.list.RowIDs[it.pos]
	w = it.list.Weights[it.pos]
	maxNext = weight.F32.Minimum()
	if it.list.MaxNext != nil {
		maxNext = it.list.MaxNext[it.pos]
	}
	return rowID, w, maxNext, true
}

// Advance moves to the next element. It is a no-op once exhausted.
func (it *Iterator) Advance() {
	if it.list == nil {
		return
	}
	if it.pos < len(it.list.RowIDs) {
		it.pos++
	}
}

// SkipTo positions the iterator at the first element with
// row_id >= target, or exhausts it if none exists. Implemented with a
// binary search since postings are sorted ascending (spec §4.9
// skip_to).
func (it *Iterator) SkipTo(target uint32) {
	if it.list == nil {
		return
	}
	rows := it.list.RowIDs
	if it.pos < len(rows) && rows[it.pos] >= target {
		return
	}
	it.pos += sort.Search(len(rows)-it.pos, func(i int) bool {
		return rows[it.pos+i] >= target
	})
}

// LastRowID returns the posting's maximum row_id, or 0 if empty.
func (it *Iterator) LastRowID() uint32 {
	if it.list == nil {
		return 0
	}
	return it.list.LastRowID()
}

// Exhausted reports whether the iterator has no more elements.
func (it *Iterator) Exhausted() bool {
	return it.list == nil || it.pos >= len(it.list.RowIDs)
}
