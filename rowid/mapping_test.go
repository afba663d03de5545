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

package rowid

import "testing"

func TestNilMappingIsIdentity(t *testing.T) {
	var m *Mapping
	if m.External(42) != 42 {
		t.Fatal("nil mapping should be identity for External")
	}
	if v, ok := m.Internal(42); !ok || v != 42 {
		t.Fatal("nil mapping should be identity for Internal")
	}
	rows := []uint32{1, 2, 3}
	got := m.TranslateRows(rows)
	for i, r := range rows {
		if got[i] != r {
			t.Fatal("nil mapping should pass rows through unchanged")
		}
	}
}

func TestMappingRoundTrip(t *testing.T) {
	m := New([]uint32{100, 200, 300})
	if m.External(1) != 200 {
		t.Fatalf("External(1) = %d, want 200", m.External(1))
	}
	if v, ok := m.Internal(300); !ok || v != 2 {
		t.Fatalf("Internal(300) = (%d,%v), want (2,true)", v, ok)
	}
	if _, ok := m.Internal(999); ok {
		t.Fatal("Internal(999) should not exist")
	}
}

func TestTranslateRowsDropsUnmapped(t *testing.T) {
	m := New([]uint32{100, 200})
	got := m.TranslateRows([]uint32{100, 999, 200})
	want := []uint32{0, 1}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestExternalOutOfRangeOrdinalIdentity(t *testing.T) {
	m := New([]uint32{100})
	if m.External(5) != 5 {
		t.Fatal("out-of-range ordinal should fall back to identity")
	}
}
