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

// Package merge implements the multi-way segment compaction merger
// (spec §4.7): N immutable segments covering possibly-overlapping
// row_id ranges are fused into one new sealed segment.
package merge

import (
	"fmt"

	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/segment"
	"github.com/sneller-labs/sidx/weight"
)

// Options configures the output segment produced by Merge.
type Options struct {
	ElementType posting.Kind
	WeightType  weight.Kind
	Quantized   bool
	Storage     segment.StorageKind
	// RowIDsArchive is only used when Storage == StorageCompressedMmap.
	RowIDsArchive string
}

// Merge fuses inputs (ordered oldest to newest -- the last element of
// inputs is treated as "the later segment" for the duplicate-row_id
// tie-break in spec §4.3) into one new segment named outSegID under
// dir, written and sealed via opts.Storage.
//
// Inputs must share weight type, element kind and dim space
// conventions; this is a precondition on the caller, which Merge
// neither checks nor normalizes (spec §4.7 "mixed kinds must first be normalized -- this
// is a precondition, not a fallback").
func Merge(dir, outSegID string, inputs []segment.Reader, opts Options) (*segment.Meta, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("merge: no inputs")
	}

	var minDim, maxDim uint32
	var minRow, maxRow uint32
	haveDimRange, haveRowRange := false, false
	for _, r := range inputs {
		m := r.Meta()
		if m.PostingCount > 0 {
			if !haveDimRange || m.MinDimID < minDim {
				minDim = m.MinDimID
			}
			if !haveDimRange || m.MaxDimID > maxDim {
				maxDim = m.MaxDimID
			}
			haveDimRange = true
		}
		if m.VectorCount > 0 {
			if !haveRowRange || m.MinRowID < minRow {
				minRow = m.MinRowID
			}
			if !haveRowRange || m.MaxRowID > maxRow {
				maxRow = m.MaxRowID
			}
			haveRowRange = true
		}
	}

	out := &ramindex.Index{Postings: make(map[uint32]*posting.List)}
	seenRows := make(map[uint32]struct{})

	if haveDimRange {
		for d := minDim; ; d++ {
			srcs := make([]posting.Source, 0, len(inputs))
			for _, r := range inputs {
				l, ok, err := r.Dim(d)
				if err != nil {
					return nil, fmt.Errorf("merge: dim %d: %w", d, err)
				}
				if ok {
					srcs = append(srcs, posting.NewSliceSource(l.RowIDs, l.Weights))
				}
			}
			if len(srcs) > 0 {
				merged := posting.Merge(srcs, opts.ElementType)
				out.Postings[d] = merged
				for _, rid := range merged.RowIDs {
					seenRows[rid] = struct{}{}
				}
			}
			if d == maxDim {
				break
			}
		}
	}

	out.Metrics = ramindex.Metrics{
		MinRowID: minRow,
		MaxRowID: maxRow,
		MinDimID: minDim,
		MaxDimID: maxDim,
		// VectorCount here counts only rows that contributed at least
		// one non-zero dimension, since a row inserted with an
		// entirely empty vector leaves no trace in any on-disk
		// posting for a merge to recover.
		VectorCount: uint64(len(seenRows)),
	}
	if !haveDimRange {
		out.Metrics.MinDimID, out.Metrics.MaxDimID = 0, 0
	}

	// A quantized segment stores u8 codes whatever the original weight type.
	wkind := opts.WeightType
	if opts.Quantized {
		wkind = weight.U8
	}
	switch opts.Storage {
	case segment.StorageMmap:
		if err := segment.WritePlain(dir, outSegID, out, opts.ElementType, wkind, opts.Quantized); err != nil {
			return nil, err
		}
	case segment.StorageCompressedMmap:
		if err := segment.WriteCompressed(dir, outSegID, out, opts.ElementType, wkind, opts.Quantized, opts.RowIDsArchive); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("merge: unsupported storage kind %q", opts.Storage)
	}
	return segment.ReadMeta(dir, outSegID)
}
