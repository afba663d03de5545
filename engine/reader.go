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

	"github.com/sneller-labs/sidx/segment"
)

// readerBridge is the opened-segments snapshot a search runs against:
// one entry per segment currently listed in the index path's manifest
// at the time load_reader was called (spec §5 "search is pure over a
// segment snapshot; multiple top-k queries may proceed in parallel on
// the same segment"; "in-flight searches keep their snapshot").
type readerBridge struct {
	dir  string
	segs []segment.Reader
}

// memLookup resolves a storage_kind=memory segment id to the live
// reader an earlier Writer.Commit registered, since such a segment has
// no payload files to reopen from disk.
type memLookup func(dir, segID string) (*segment.MemoryReader, bool)

func loadReaderBridge(dir string, lookupMem memLookup) (*readerBridge, error) {
	lock, err := acquireMetaLock(dir)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	segs := make([]segment.Reader, 0, len(m.Segments))
	for _, id := range m.Segments {
		meta, err := segment.ReadMeta(dir, id)
		if err != nil {
			for _, opened := range segs {
				opened.Close()
			}
			return nil, newErr(Corruption, "load_reader", dir, fmt.Errorf("segment %s: %w", id, err))
		}
		if meta.Version.StorageKind == segment.StorageMemory {
			r, ok := lookupMem(dir, id)
			if !ok {
				for _, opened := range segs {
					opened.Close()
				}
				return nil, newErr(Corruption, "load_reader", dir, fmt.Errorf("segment %s: memory segment not resident (process restart?)", id))
			}
			segs = append(segs, r)
			continue
		}
		r, err := segment.Open(dir, id)
		if err != nil {
			for _, opened := range segs {
				opened.Close()
			}
			return nil, newErr(Corruption, "load_reader", dir, fmt.Errorf("segment %s: %w", id, err))
		}
		segs = append(segs, r)
	}
	return &readerBridge{dir: dir, segs: segs}, nil
}

func (b *readerBridge) Close() error {
	var first error
	for _, s := range b.segs {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
