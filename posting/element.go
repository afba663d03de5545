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

// Package posting implements the in-memory posting-list data model: the
// per-dimension (row_id, weight[, max_next_weight]) records that make up
// a single column of a sparse-vector inverted index, independent of how
// they are eventually laid out on disk (see the segment package for
// that).
package posting

import "fmt"

// Kind distinguishes a Simple posting element (row_id, weight) from an
// Extended one that additionally carries a max_next_weight suffix-max
// field enabling WAND pruning (spec §3, §4.3, §9).
type Kind uint8

const (
	Simple Kind = iota
	Extended
)

func (k Kind) String() string {
	switch k {
	case Simple:
		return "simple"
	case Extended:
		return "extended"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind maps a settings string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "simple":
		return Simple, nil
	case "extended":
		return Extended, nil
	default:
		return 0, fmt.Errorf("posting: unknown element_type %q", s)
	}
}

// MarshalJSON encodes the Kind as its settings string (spec §6
// "element_type").
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON decodes a settings string into a Kind.
func (k *Kind) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = v
	return nil
}
