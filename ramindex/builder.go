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

// Package ramindex implements the in-memory dimension-to-posting-list
// index that a single writer builds up from host inserts before it is
// frozen and handed to a segment writer (spec §4.4).
package ramindex

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sneller-labs/sidx/internal/atomicext"
	"github.com/sneller-labs/sidx/posting"
)

// Pair is one (dimension, weight) component of a sparse vector.
type Pair struct {
	Dim    uint32
	Weight float32
}

// Builder is a single-writer accumulator for (row_id, sparse_vector)
// inserts (spec §5: "A builder is single-writer: one thread appends
// rows; build() consumes it."). The row/dim range and vector_count
// fields are updated with atomic operations, but MemoryUsage walks the
// per-dimension map without any locking and is not safe to call
// concurrently with Add.
type Builder struct {
	dims map[uint32]*posting.Builder

	seen      bool
	lastRowID uint32

	minRowID, maxRowID int64
	minDimID, maxDimID int64
	vectorCount        int64
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{dims: make(map[uint32]*posting.Builder)}
}

// NonMonotonicError describes an out-of-order row_id (spec §4.4). Add
// never returns it: Add reports that case as (false, nil) and ignores
// the row. The type is available to callers that choose to turn such a
// false return into an error of their own.
type NonMonotonicError struct {
	RowID, Previous uint32
}

func (e *NonMonotonicError) Error() string {
	return fmt.Sprintf("ramindex: row_id %d is not greater than previous max %d", e.RowID, e.Previous)
}

// Add inserts one row into the index. It returns (true, nil) on
// success, (false, nil) if row_id was not strictly greater than the
// previously-seen row_id for this builder (a silent no-op per spec
// §4.4 -- the host is expected to sort a non-monotonic batch and
// retry), and (false, err) if vec itself is malformed: dims must be
// strictly increasing and weights must not be NaN (spec §7,
// InvalidArgument).
//
// An empty vec is accepted and still advances the row_id high-water
// mark and vector_count: the row legitimately exists, it simply has no
// non-zero dimensions (spec §8 "Empty vector insert is a no-op" refers
// to there being no posting-list work to do, not to the row vanishing).
func (b *Builder) Add(rowID uint32, vec []Pair) (bool, error) {
	for i, p := range vec {
		if math.IsNaN(float64(p.Weight)) {
			return false, fmt.Errorf("ramindex: NaN weight at dim %d", p.Dim)
		}
		if i > 0 && vec[i-1].Dim >= p.Dim {
			return false, fmt.Errorf("ramindex: dims must be strictly increasing (dim %d follows dim %d)", p.Dim, vec[i-1].Dim)
		}
	}
	if b.seen && rowID <= b.lastRowID {
		return false, nil
	}

	for _, p := range vec {
		bd, ok := b.dims[p.Dim]
		if !ok {
			if len(b.dims) == 0 {
				b.minDimID = int64(p.Dim)
			}
			bd = &posting.Builder{}
			b.dims[p.Dim] = bd
		}
		bd.Append(rowID, p.Weight)
		atomicext.MinInt64(&b.minDimID, int64(p.Dim))
		atomicext.MaxInt64(&b.maxDimID, int64(p.Dim))
	}

	if !b.seen {
		b.minRowID = int64(rowID)
	}
	atomicext.MinInt64(&b.minRowID, int64(rowID))
	atomicext.MaxInt64(&b.maxRowID, int64(rowID))
	b.seen = true
	b.lastRowID = rowID
	atomic.AddInt64(&b.vectorCount, 1)
	return true, nil
}

// MemoryUsage approximates the number of bytes retained by the
// builder across all per-dimension postings (spec §4.4).
func (b *Builder) MemoryUsage() int {
	n := 0
	for _, bd := range b.dims {
		n += bd.MemoryUsage()
	}
	return n
}

// Build freezes the builder into an immutable Index. kind selects
// whether max_next_weight back-fill is performed (spec §4.4).
func (b *Builder) Build(kind posting.Kind) (*Index, error) {
	idx := &Index{
		Postings: make(map[uint32]*posting.List, len(b.dims)),
		Metrics: Metrics{
			MinRowID:    uint32(b.minRowID),
			MaxRowID:    uint32(b.maxRowID),
			MinDimID:    uint32(b.minDimID),
			MaxDimID:    uint32(b.maxDimID),
			VectorCount: uint64(b.vectorCount),
		},
	}
	for dim, bd := range b.dims {
		l, err := bd.Build(kind)
		if err != nil {
			return nil, fmt.Errorf("ramindex: dim %d: %w", dim, err)
		}
		idx.Postings[dim] = l
	}
	return idx, nil
}
