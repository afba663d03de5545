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

// Builder accumulates (row_id, weight) pairs for a single dimension in
// arbitrary order and freezes them into a sorted List on Build.
//
// Builder uses the append-then-sort strategy permitted by spec §4.3:
// appends are O(1) amortized and the single sort at Build time is
// O(n log n), which is cheaper in aggregate than keeping each posting
// sorted on every append for the write-heavy ingestion path.
type Builder struct {
	rowIDs  []uint32
	weights []float32
}

// Append adds one (row_id, weight) pair to the posting under
// construction. The host is expected to supply unique row_ids per
// dimension (see RAMIndex.Builder.Add for the cross-dimension
// monotonicity check); Builder itself does not reject duplicates here
// because it cannot yet tell a legitimate re-insertion from a host bug
// until Build sorts the data.
func (b *Builder) Append(rowID uint32, w float32) {
	b.rowIDs = append(b.rowIDs, rowID)
	b.weights = append(b.weights, w)
}

// Len returns the number of elements appended so far.
func (b *Builder) Len() int { return len(b.rowIDs) }

// MemoryUsage approximates the bytes retained by this builder.
func (b *Builder) MemoryUsage() int {
	return len(b.rowIDs)*4 + len(b.weights)*4
}

// List is a frozen, row_id-sorted posting for one dimension. Weights
// are always kept as float32 (the "original weight" space); the
// storage Kind and any quantization are applied only when the list is
// serialized to a segment (see the segment package).
type List struct {
	RowIDs  []uint32
	Weights []float32
	// MaxNext holds the suffix-max of Weights for Extended postings;
	// nil for Simple postings (spec §4.3, §9 "Max-next-weight for
	// Simple postings").
	MaxNext []float32
}

// Build sorts the accumulated pairs by row_id and, for Extended lists,
// computes the max_next_weight suffix-max backfill. It returns an
// error if the builder observed a duplicate row_id, which spec §9
// treats as an open question this implementation resolves as
// InvalidArgument (a builder only ever sees rows from one host insert
// stream, so a duplicate indicates host misuse rather than a
// legitimate merge-time collision).
func (b *Builder) Build(kind Kind) (*List, error) {
	n := len(b.rowIDs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return b.rowIDs[idx[i]] < b.rowIDs[idx[j]] })

	l := &List{
		RowIDs:  make([]uint32, n),
		Weights: make([]float32, n),
	}
	for i, j := range idx {
		l.RowIDs[i] = b.rowIDs[j]
		l.Weights[i] = b.weights[j]
	}
	for i := 1; i < n; i++ {
		if l.RowIDs[i] == l.RowIDs[i-1] {
			return nil, &DuplicateRowIDError{RowID: l.RowIDs[i]}
		}
	}
	if kind == Extended {
		l.backfillMaxNext()
	}
	return l, nil
}

// DuplicateRowIDError reports that a builder observed the same row_id
// twice for one dimension.
type DuplicateRowIDError struct {
	RowID uint32
}

func (e *DuplicateRowIDError) Error() string {
	return "posting: duplicate row_id within a single builder"
}

func (l *List) backfillMaxNext() {
	n := len(l.Weights)
	l.MaxNext = make([]float32, n)
	if n == 0 {
		return
	}
	l.MaxNext[n-1] = weight.F32.Minimum()
	for i := n - 2; i >= 0; i-- {
		m := l.Weights[i+1]
		if l.MaxNext[i+1] > m {
			m = l.MaxNext[i+1]
		}
		l.MaxNext[i] = m
	}
}

// LastRowID returns the largest row_id in the list, or 0 if empty.
func (l *List) LastRowID() uint32 {
	if len(l.RowIDs) == 0 {
		return 0
	}
	return l.RowIDs[len(l.RowIDs)-1]
}

// MinMaxWeight returns the min and max of Weights, used to derive
// QuantizedParam at serialization time. It returns (0, 0) for an
// empty list.
func (l *List) MinMaxWeight() (min, max float32) {
	if len(l.Weights) == 0 {
		return 0, 0
	}
	min, max = l.Weights[0], l.Weights[0]
	for _, w := range l.Weights[1:] {
		if w < min {
			min = w
		}
		if w > max {
			max = w
		}
	}
	return min, max
}

// Validate checks the strict-monotonicity invariant (spec §3 invariant
// 1); intended for tests and debugging, not the hot path.
func (l *List) Validate() error {
	for i := 1; i < len(l.RowIDs); i++ {
		if l.RowIDs[i] <= l.RowIDs[i-1] {
			return &NotSortedError{Index: i}
		}
	}
	return nil
}

// NotSortedError reports a row_id ordering violation.
type NotSortedError struct {
	Index int
}

func (e *NotSortedError) Error() string {
	return "posting: row_ids are not strictly increasing"
}
