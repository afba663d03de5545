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
	"encoding/json"
	"fmt"

	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/segment"
	"github.com/sneller-labs/sidx/weight"
)

// InvertedIndexConfig is the recognized subset of settings JSON passed
// to create_index (spec §6). The outer Settings wrapper mirrors the
// way db.TableDefinition nests its "input"/"partitions" keys: a single
// recognized top-level key, decoded with plain encoding/json tags.
type InvertedIndexConfig struct {
	Storage     segment.StorageKind `json:"storage"`
	WeightType  weight.Kind         `json:"weight_type"`
	Quantized   bool                `json:"quantized"`
	ElementType posting.Kind        `json:"element_type"`
	// RowIDsArchive names the optional secondary compression envelope
	// over the compressed-mmap row_ids stream (SPEC_FULL.md domain
	// stack): "", "s2" or "zstd". Only meaningful when
	// Storage == compressed_mmap.
	RowIDsArchive string `json:"row_ids_archive,omitempty"`
}

// Settings is the top-level settings document a host passes to
// create_index.
type Settings struct {
	InvertedIndexConfig InvertedIndexConfig `json:"inverted_index_config"`
}

// ParseSettings decodes and validates a settings JSON document (spec
// §6, §7 InvalidArgument).
func ParseSettings(b []byte) (*Settings, error) {
	var s Settings
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("engine: decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the combination of settings for legality (spec §6
// "quantized: boolean; illegal when weight_type = u8").
func (s *Settings) Validate() error {
	c := s.InvertedIndexConfig
	switch c.Storage {
	case segment.StorageMemory, segment.StorageMmap, segment.StorageCompressedMmap:
	default:
		return fmt.Errorf("engine: unrecognized inverted_index_config.storage %q", c.Storage)
	}
	switch c.WeightType {
	case weight.F32, weight.F16, weight.U8:
	default:
		return fmt.Errorf("engine: unrecognized inverted_index_config.weight_type %q", c.WeightType)
	}
	switch c.ElementType {
	case posting.Simple, posting.Extended:
	default:
		return fmt.Errorf("engine: unrecognized inverted_index_config.element_type %q", c.ElementType)
	}
	if c.WeightType == weight.U8 && c.Quantized {
		return fmt.Errorf("engine: quantized is illegal when weight_type = u8 (u8 storage is already quantized)")
	}
	switch c.RowIDsArchive {
	case "", "s2", "zstd":
	default:
		return fmt.Errorf("engine: unrecognized inverted_index_config.row_ids_archive %q", c.RowIDsArchive)
	}
	return nil
}
