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
	"fmt"
	"sort"

	"github.com/sneller-labs/sidx/posting"
)

// Metrics are the aggregate statistics tracked over the life of a
// Builder and frozen into its Index (spec §3).
type Metrics struct {
	MinRowID, MaxRowID uint32
	MinDimID, MaxDimID uint32
	VectorCount        uint64
}

// Index is an immutable, frozen RAM index: a DimId -> PostingList map
// plus aggregate metrics, produced once by Builder.Build and consumed
// once by a segment serializer or by the merger (spec §3 "Lifecycles").
type Index struct {
	Postings map[uint32]*posting.List
	Metrics  Metrics
}

// Validate checks that posting_count fits the dim range (invariant 4
// from spec §3) and runs posting.List.Validate on every posting
// (invariant 1). It does not check vector_count (invariant 3) or
// max_next_weight correctness (invariant 2).
func (idx *Index) Validate() error {
	if uint64(len(idx.Postings)) > uint64(idx.Metrics.MaxDimID)-uint64(idx.Metrics.MinDimID)+1 && len(idx.Postings) > 0 {
		return fmt.Errorf("ramindex: posting_count %d exceeds dim range [%d,%d]", len(idx.Postings), idx.Metrics.MinDimID, idx.Metrics.MaxDimID)
	}
	for dim, l := range idx.Postings {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("ramindex: dim %d: %w", dim, err)
		}
	}
	return nil
}

// SortedDims returns the posting's dimension ids in ascending order,
// the iteration order required when serializing to the columnar
// on-disk formats (spec §4.5 "headers form a contiguous array indexed
// by dim id").
func (idx *Index) SortedDims() []uint32 {
	dims := make([]uint32, 0, len(idx.Postings))
	for d := range idx.Postings {
		dims = append(dims, d)
	}
	sort.Slice(dims, func(i, j int) bool { return dims[i] < dims[j] })
	return dims
}
