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
	"os"
	"path/filepath"
	"testing"

	"github.com/sneller-labs/sidx/merge"
	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/search"
	"github.com/sneller-labs/sidx/segment"
	"github.com/sneller-labs/sidx/weight"
)

const mmapSettings = `{"inverted_index_config":{"storage":"mmap","weight_type":"f32","quantized":false,"element_type":"simple"}}`

func TestCreateInsertCommitSearchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := New()

	if r := e.CreateIndex(dir, []byte(mmapSettings)); !r.OK {
		t.Fatalf("create_index: %s", r.Message)
	}
	if r := e.Insert(dir, 0, []ramindex.Pair{{Dim: 1, Weight: 0.5}, {Dim: 3, Weight: 1.0}}); !r.OK {
		t.Fatalf("insert(0): %s", r.Message)
	}
	if r := e.Insert(dir, 1, []ramindex.Pair{{Dim: 3, Weight: 0.2}, {Dim: 5, Weight: 0.8}}); !r.OK {
		t.Fatalf("insert(1): %s", r.Message)
	}
	if r := e.Commit(dir); !r.OK {
		t.Fatalf("commit: %s", r.Message)
	}
	if r := e.LoadReader(dir); !r.OK {
		t.Fatalf("load_reader: %s", r.Message)
	}

	got, r := e.Search(dir, []search.Term{{Dim: 3, Weight: 1.0}}, nil, 2)
	if !r.OK {
		t.Fatalf("search: %s", r.Message)
	}
	if len(got) != 2 || got[0].RowID != 0 || got[0].Score != 1.0 || got[1].RowID != 1 || got[1].Score != 0.2 {
		t.Fatalf("unexpected results: %v", got)
	}

	if r := e.FreeReader(dir); !r.OK {
		t.Fatalf("free_reader: %s", r.Message)
	}
	if r := e.FreeWriter(dir); !r.OK {
		t.Fatalf("free_writer: %s", r.Message)
	}
	if _, err := os.Stat(filepath.Join(dir, writerLockName)); !os.IsNotExist(err) {
		t.Fatal("writer lock file should be removed after free_writer")
	}
}

func TestCreateIndexConflictOnDoubleOpen(t *testing.T) {
	dir := t.TempDir()
	e := New()
	if r := e.CreateIndex(dir, []byte(mmapSettings)); !r.OK {
		t.Fatalf("create_index: %s", r.Message)
	}
	r := e.CreateIndex(dir, []byte(mmapSettings))
	if r.OK {
		t.Fatal("expected Conflict on second create_index")
	}
}

func TestSearchWithoutLoadReaderIsNotFound(t *testing.T) {
	e := New()
	_, r := e.Search(t.TempDir(), []search.Term{{Dim: 1, Weight: 1}}, nil, 5)
	if r.OK {
		t.Fatal("expected NotFound for an unloaded reader")
	}
}

func TestInvalidSettingsRejected(t *testing.T) {
	e := New()
	r := e.CreateIndex(t.TempDir(), []byte(`{"inverted_index_config":{"storage":"mmap","weight_type":"u8","quantized":true,"element_type":"simple"}}`))
	if r.OK {
		t.Fatal("expected InvalidArgument: quantized is illegal with weight_type=u8")
	}
}

func TestMemoryStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	e := New()
	settings := `{"inverted_index_config":{"storage":"memory","weight_type":"f32","quantized":false,"element_type":"simple"}}`
	if r := e.CreateIndex(dir, []byte(settings)); !r.OK {
		t.Fatalf("create_index: %s", r.Message)
	}
	if r := e.Insert(dir, 0, []ramindex.Pair{{Dim: 1, Weight: 2.0}}); !r.OK {
		t.Fatalf("insert: %s", r.Message)
	}
	if r := e.Commit(dir); !r.OK {
		t.Fatalf("commit: %s", r.Message)
	}
	if r := e.LoadReader(dir); !r.OK {
		t.Fatalf("load_reader: %s", r.Message)
	}
	got, r := e.Search(dir, []search.Term{{Dim: 1, Weight: 1.0}}, nil, 1)
	if !r.OK {
		t.Fatalf("search: %s", r.Message)
	}
	if len(got) != 1 || got[0].RowID != 0 || got[0].Score != 2.0 {
		t.Fatalf("unexpected results: %v", got)
	}
}

func TestMergeAllCompactsAndGCs(t *testing.T) {
	dir := t.TempDir()
	e := New()
	if r := e.CreateIndex(dir, []byte(mmapSettings)); !r.OK {
		t.Fatalf("create_index: %s", r.Message)
	}
	if r := e.Insert(dir, 0, []ramindex.Pair{{Dim: 1, Weight: 1.0}}); !r.OK {
		t.Fatal(r.Message)
	}
	if r := e.Commit(dir); !r.OK {
		t.Fatal(r.Message)
	}
	if r := e.Insert(dir, 1, []ramindex.Pair{{Dim: 1, Weight: 2.0}}); !r.OK {
		t.Fatal(r.Message)
	}
	if r := e.Commit(dir); !r.OK {
		t.Fatal(r.Message)
	}

	mBefore, err := readManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(mBefore.Segments) != 2 {
		t.Fatalf("expected 2 segments pre-merge, got %d", len(mBefore.Segments))
	}

	r := e.MergeAll(dir, merge.Options{ElementType: posting.Simple, WeightType: weight.F32, Storage: segment.StorageMmap})
	if !r.OK {
		t.Fatalf("merge: %s", r.Message)
	}

	mAfter, err := readManifest(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(mAfter.Segments) != 1 {
		t.Fatalf("expected 1 segment post-merge, got %d", len(mAfter.Segments))
	}
	for _, id := range mBefore.Segments {
		if _, err := os.Stat(filepath.Join(dir, id+".meta.json")); !os.IsNotExist(err) {
			t.Fatalf("superseded segment %s should have been GC'd", id)
		}
	}

	if r := e.LoadReader(dir); !r.OK {
		t.Fatalf("load_reader after merge: %s", r.Message)
	}
	got, r := e.Search(dir, []search.Term{{Dim: 1, Weight: 1.0}}, nil, 5)
	if !r.OK {
		t.Fatalf("search after merge: %s", r.Message)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows after merge, got %v", got)
	}
}
