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

package engine

import (
	"fmt"
	"sync"

	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/segment"
	"github.com/sneller-labs/sidx/weight"
)

// Writer is the single-writer bridge opened by create_index and fed
// by insert/commit (spec §5 "a builder is single-writer: one thread
// appends rows; build() consumes it").
type Writer struct {
	dir      string
	settings Settings
	lock     *writerLock

	mu       sync.Mutex
	builder  *ramindex.Builder
	poisoned error // non-nil once a panicked insert poisons this writer
}

func newWriter(dir string, settings Settings, lock *writerLock) *Writer {
	return &Writer{dir: dir, settings: settings, lock: lock, builder: ramindex.NewBuilder()}
}

// Insert appends one (row_id, sparse_vector) to the writer's RAM
// index. A panic from within the builder (e.g. an invariant violation
// the builder itself does not turn into an error) poisons the writer:
// every subsequent call returns LockPoisoned and the writer must be
// freed (spec §7 "LockPoisoned -- builder mutex poisoned by a
// panicked producer; surfaces to the host, no recovery attempted").
func (w *Writer) Insert(rowID uint32, vec []ramindex.Pair) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.poisoned != nil {
		return newErr(LockPoisoned, "insert", w.dir, w.poisoned)
	}
	defer func() {
		if r := recover(); r != nil {
			w.poisoned = fmt.Errorf("panic: %v", r)
			err = newErr(LockPoisoned, "insert", w.dir, w.poisoned)
		}
	}()
	_, addErr := w.builder.Add(rowID, vec)
	if addErr != nil {
		return newErr(InvalidArgument, "insert", w.dir, addErr)
	}
	return nil
}

// commitResult carries what the engine needs to register a freshly
// sealed segment: its meta, its id, and -- for memory storage only --
// the live postings map that must stay resident for the segment to be
// readable at all.
type commitResult struct {
	segID    string
	meta     *segment.Meta
	postings map[uint32]*posting.List
}

// Commit freezes the writer's builder into an immutable segment,
// serializes it per the writer's settings, and returns enough to let
// the caller update the index's manifest and (for memory storage)
// keep the backing postings registered.
func (w *Writer) Commit() (*commitResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.poisoned != nil {
		return nil, newErr(LockPoisoned, "commit", w.dir, w.poisoned)
	}

	idx, err := w.builder.Build(w.settings.InvertedIndexConfig.ElementType)
	if err != nil {
		return nil, newErr(InvalidArgument, "commit", w.dir, err)
	}
	if err := idx.Validate(); err != nil {
		return nil, newErr(Corruption, "commit", w.dir, err)
	}

	segID := newSegmentID("seg")
	cfg := w.settings.InvertedIndexConfig
	// A quantized segment stores u8 codes whatever the original weight_type.
	wkind := cfg.WeightType
	if cfg.Quantized {
		wkind = weight.U8
	}
	switch cfg.Storage {
	case segment.StorageMmap:
		if err := segment.WritePlain(w.dir, segID, idx, cfg.ElementType, wkind, cfg.Quantized); err != nil {
			return nil, newErr(IO, "commit", w.dir, err)
		}
	case segment.StorageCompressedMmap:
		if err := segment.WriteCompressed(w.dir, segID, idx, cfg.ElementType, wkind, cfg.Quantized, cfg.RowIDsArchive); err != nil {
			return nil, newErr(IO, "commit", w.dir, err)
		}
	case segment.StorageMemory:
		meta := &segment.Meta{
			PostingCount: uint32(len(idx.Postings)),
			VectorCount:  idx.Metrics.VectorCount,
			MinRowID:     idx.Metrics.MinRowID,
			MaxRowID:     idx.Metrics.MaxRowID,
			MinDimID:     idx.Metrics.MinDimID,
			MaxDimID:     idx.Metrics.MaxDimID,
			WeightType:   cfg.WeightType,
			ElementType:  cfg.ElementType,
			Version:      segment.Version{StorageKind: segment.StorageMemory, Revision: segment.CurrentRevision},
		}
		if err := segment.WriteMeta(w.dir, segID, meta); err != nil {
			return nil, newErr(IO, "commit", w.dir, err)
		}
	default:
		return nil, newErr(InvalidArgument, "commit", w.dir, fmt.Errorf("unsupported storage kind %q", cfg.Storage))
	}

	meta, err := segment.ReadMeta(w.dir, segID)
	if err != nil {
		return nil, newErr(Corruption, "commit", w.dir, err)
	}

	res := &commitResult{segID: segID, meta: meta}
	if cfg.Storage == segment.StorageMemory {
		res.postings = idx.Postings
	}
	// A fresh builder is ready for the next batch; committed rows are
	// not retained in the writer (spec §4.4: build() consumes the
	// builder's accumulated state).
	w.builder = ramindex.NewBuilder()
	return res, nil
}
