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

// Package search implements the WAND-pruned top-k inner-product scan
// over one or more segments (spec §4.9).
package search

import (
	"fmt"
	"math"
	"sort"

	"github.com/sneller-labs/sidx/bitmap"
	"github.com/sneller-labs/sidx/heap"
	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/segment"
)

// Term is one non-zero dimension of a query vector.
type Term struct {
	Dim    uint32
	Weight float32
}

// Result is one row's inner-product score against a query.
type Result struct {
	RowID uint32
	Score float32
}

type cursor struct {
	it *posting.Iterator
	qw float32
}

// heapEntry is stored in the shared min-heap; the smallest score sits
// at the root so it is the one evicted when the heap is full and a
// better candidate arrives (spec §4.9 step 5).
type heapEntry struct {
	rowID uint32
	score float32
}

func lessHeap(a, b heapEntry) bool { return a.score < b.score }

// Search runs a single segment's WAND-pruned top-k scan (spec §4.9).
// filter may be nil or empty, meaning no filtering. A NaN query weight
// is rejected with an error, since NaN weights are illegal input
// everywhere in this system (spec §4.9 "Numeric semantics"); terms
// with weight <= 0 are skipped, since the spec only defines pruning
// for positive query weights.
func Search(r segment.Reader, query []Term, filter *bitmap.Bitmap, topK int) ([]Result, error) {
	cursors := make([]*cursor, 0, len(query))
	for _, t := range query {
		if math.IsNaN(float64(t.Weight)) {
			return nil, fmt.Errorf("search: NaN query weight for dim %d", t.Dim)
		}
		if t.Weight <= 0 {
			continue
		}
		l, ok, err := r.Dim(t.Dim)
		if err != nil {
			return nil, fmt.Errorf("search: dim %d: %w", t.Dim, err)
		}
		if !ok {
			continue
		}
		cursors = append(cursors, &cursor{it: posting.NewIterator(l), qw: t.Weight})
	}
	if topK <= 0 || len(cursors) == 0 {
		return nil, nil
	}

	h := make([]heapEntry, 0, topK)
	minScore := float32(math.Inf(-1))

	active := func() []*cursor {
		out := cursors[:0:0]
		for _, c := range cursors {
			if !c.it.Exhausted() {
				out = append(out, c)
			}
		}
		return out
	}

	for {
		live := active()
		if len(live) == 0 {
			break
		}

		var r0 uint32
		first := true
		for _, c := range live {
			rid, _, _, _ := c.it.Peek()
			if first || rid < r0 {
				r0 = rid
				first = false
			}
		}

		var score float32
		var contributing []*cursor
		for _, c := range live {
			rid, w, _, ok := c.it.Peek()
			if ok && rid == r0 {
				score += c.qw * w
				contributing = append(contributing, c)
			}
		}
		if filter == nil || filter.Empty() || filter.IsAlive(r0) {
			if len(h) < topK {
				heap.PushSlice(&h, heapEntry{rowID: r0, score: score}, lessHeap)
				if len(h) == topK {
					minScore = h[0].score
				}
			} else if score > h[0].score {
				heap.PopSlice(&h, lessHeap)
				heap.PushSlice(&h, heapEntry{rowID: r0, score: score}, lessHeap)
				minScore = h[0].score
			}
		}
		for _, c := range contributing {
			c.it.Advance()
		}

		// WAND pruning (spec §4.9 step 7): find the live iterator with
		// the single largest remaining potential contribution; if even
		// that is insufficient to ever unseat the heap's floor, skip
		// it to the smallest head row_id among the others. Only Extended
		// segments carry max_next_weight bounds, so Simple segments are
		// scanned without pruning.
		live = active()
		if len(live) < 2 || len(h) < topK || r.Meta().ElementType != posting.Extended {
			continue
		}
		var best *cursor
		var bestPotential float32
		for _, c := range live {
			_, w, maxNext, ok := c.it.Peek()
			if !ok {
				continue
			}
			m := w
			if maxNext > m {
				m = maxNext
			}
			p := c.qw * m
			if best == nil || p > bestPotential {
				best, bestPotential = c, p
			}
		}
		if best != nil && bestPotential <= minScore {
			var target uint32
			foundTarget := false
			for _, c := range live {
				if c == best {
					continue
				}
				rid, _, _, ok := c.it.Peek()
				if ok && (!foundTarget || rid < target) {
					target, foundTarget = rid, true
				}
			}
			if foundTarget {
				best.it.SkipTo(target)
			}
		}
	}

	sort.Slice(h, func(i, j int) bool {
		if h[i].score != h[j].score {
			return h[i].score > h[j].score
		}
		return h[i].rowID < h[j].rowID
	})
	out := make([]Result, len(h))
	for i, e := range h {
		out[i] = Result{RowID: e.rowID, Score: e.score}
	}
	return out, nil
}

// SearchMulti runs Search independently over each reader and combines
// the per-segment top-k lists into one global top-k, re-sorted by
// (score desc, row_id asc). This assumes row_ids are not duplicated
// live across the given readers (true once a merge has fused
// overlapping segments; see the merge package).
func SearchMulti(readers []segment.Reader, query []Term, filter *bitmap.Bitmap, topK int) ([]Result, error) {
	var all []Result
	for _, r := range readers {
		res, err := Search(r, query, filter, topK)
		if err != nil {
			return nil, err
		}
		all = append(all, res...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].RowID < all[j].RowID
	})
	if len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}
