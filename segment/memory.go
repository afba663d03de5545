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

package segment

import "github.com/sneller-labs/sidx/posting"

// MemoryReader serves a sealed RAM index directly, without a
// serialize/deserialize round trip (spec §6
// "inverted_index_config.storage: memory"). Since nothing is written
// to disk, weights are exactly the float32 values the builder saw --
// Meta.Quantized/WeightType are carried only for introspection and are
// not applied to the data this reader returns. A MemoryReader does not
// survive a process restart; its owner (engine.Engine.Commit) is
// responsible for keeping the backing postings alive for as long as
// the segment id is listed in the index's manifest.
type MemoryReader struct {
	meta     *Meta
	postings map[uint32]*posting.List
}

// NewMemoryReader wraps postings (as produced by ramindex.Index) and
// meta into a Reader.
func NewMemoryReader(meta *Meta, postings map[uint32]*posting.List) *MemoryReader {
	return &MemoryReader{meta: meta, postings: postings}
}

func (r *MemoryReader) Meta() *Meta { return r.meta }

func (r *MemoryReader) Dim(dim uint32) (*posting.List, bool, error) {
	l, ok := r.postings[dim]
	return l, ok, nil
}

func (r *MemoryReader) Close() error { return nil }
