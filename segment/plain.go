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

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/weight"
)

// plainHeaderSize is the fixed byte size of one dim's header record:
// start(8) end(8) has_quant(1) quant_min(4) quant_step(4)
// row_ids_count(4) max_row_id(4) (spec §4.5).
const plainHeaderSize = 33

func plainHeadersPath(dir, segID string) string { return filepath.Join(dir, segID+".headers") }
func plainPayloadPath(dir, segID string) string { return filepath.Join(dir, segID+".postings") }

// WritePlain serializes idx into the plain mmap layout (spec §4.5):
// a headers file, a payload file, and the JSON meta side-car, all
// named by segID under dir.
func WritePlain(dir, segID string, idx *ramindex.Index, ekind posting.Kind, wkind weight.Kind, quantized bool) error {
	if quantized && wkind != weight.U8 {
		return fmt.Errorf("segment: quantized requires weight_type u8")
	}
	dims := idx.SortedDims()
	headers := make([]byte, 0, len(dims)*plainHeaderSize)
	payload := make([]byte, 0, 1024)

	elemSize := 4 + wkind.Size()
	if ekind == posting.Extended {
		elemSize += wkind.Size()
	}

	minDim, maxDim := idx.Metrics.MinDimID, idx.Metrics.MaxDimID
	if len(dims) > 0 {
		for d := minDim; ; d++ {
			l := idx.Postings[d]
			rec := make([]byte, plainHeaderSize)
			start := uint64(len(payload))
			if l != nil {
				var params weight.QuantizedParam
				if quantized {
					lo, hi := l.MinMaxWeight()
					params = weight.GenParams(lo, hi)
					rec[16] = 1
					binary.LittleEndian.PutUint32(rec[17:], mathFloat32bits(params.Min))
					binary.LittleEndian.PutUint32(rec[21:], mathFloat32bits(params.Step))
				}
				buf := make([]byte, elemSize)
				for i, rowID := range l.RowIDs {
					binary.LittleEndian.PutUint32(buf[0:4], rowID)
					bits := weightBits(l.Weights[i], wkind, quantized, params)
					wkind.PutBytes(buf[4:4+wkind.Size()], bits)
					if ekind == posting.Extended {
						mnBits := weightBits(l.MaxNext[i], wkind, quantized, params)
						wkind.PutBytes(buf[4+wkind.Size():], mnBits)
					}
					payload = append(payload, buf...)
				}
				binary.LittleEndian.PutUint32(rec[25:], uint32(len(l.RowIDs)))
				binary.LittleEndian.PutUint32(rec[29:], l.LastRowID())
			}
			end := uint64(len(payload))
			binary.LittleEndian.PutUint64(rec[0:8], start)
			binary.LittleEndian.PutUint64(rec[8:16], end)
			headers = append(headers, rec...)
			if d == maxDim {
				break
			}
		}
	} else {
		minDim, maxDim = 0, 0
	}

	if err := os.WriteFile(plainHeadersPath(dir, segID)+".tmp", headers, 0644); err != nil {
		return fmt.Errorf("segment: write headers: %w", err)
	}
	if err := os.Rename(plainHeadersPath(dir, segID)+".tmp", plainHeadersPath(dir, segID)); err != nil {
		return fmt.Errorf("segment: rename headers into place: %w", err)
	}
	if err := os.WriteFile(plainPayloadPath(dir, segID)+".tmp", payload, 0644); err != nil {
		return fmt.Errorf("segment: write payload: %w", err)
	}
	if err := os.Rename(plainPayloadPath(dir, segID)+".tmp", plainPayloadPath(dir, segID)); err != nil {
		return fmt.Errorf("segment: rename payload into place: %w", err)
	}

	m := &Meta{
		PostingCount: uint32(len(dims)),
		VectorCount:  idx.Metrics.VectorCount,
		MinRowID:     idx.Metrics.MinRowID,
		MaxRowID:     idx.Metrics.MaxRowID,
		MinDimID:     minDim,
		MaxDimID:     maxDim,
		Quantized:    quantized,
		WeightType:   wkind,
		ElementType:  ekind,
		Version:      Version{StorageKind: StorageMmap, Revision: CurrentRevision},
	}
	if len(dims) == 0 {
		m.MinDimID, m.MaxDimID = 0, 0
	}
	return WriteMeta(dir, segID, m)
}

// weightBits maps an original float32 weight to the bit pattern stored
// on disk: the quantized u8 code if quantized, otherwise wkind's native
// encoding.
func weightBits(v float32, wkind weight.Kind, quantized bool, params weight.QuantizedParam) uint32 {
	if quantized {
		return uint32(weight.Quantize(v, params))
	}
	return wkind.Bits(v)
}

func mathFloat32bits(v float32) uint32 { return weight.F32.Bits(v) }

// PlainReader is an open, mmap'd plain-format segment (spec §4.5).
type PlainReader struct {
	meta    *Meta
	headers []byte
	payload []byte
}

// OpenPlain mmaps segID's headers and payload files under dir and loads
// its meta side-car.
func OpenPlain(dir, segID string) (*PlainReader, error) {
	m, err := ReadMeta(dir, segID)
	if err != nil {
		return nil, err
	}
	if m.Version.StorageKind != StorageMmap {
		return nil, fmt.Errorf("segment: %s is not a plain mmap segment", segID)
	}
	headers, err := mmap(plainHeadersPath(dir, segID))
	if err != nil {
		return nil, fmt.Errorf("segment: mmap headers: %w", err)
	}
	payload, err := mmap(plainPayloadPath(dir, segID))
	if err != nil {
		munmap(headers)
		return nil, fmt.Errorf("segment: mmap payload: %w", err)
	}
	return &PlainReader{meta: m, headers: headers, payload: payload}, nil
}

// Close unmaps the segment's files.
func (r *PlainReader) Close() error {
	err1 := munmap(r.headers)
	err2 := munmap(r.payload)
	if err1 != nil {
		return err1
	}
	return err2
}

// Meta returns the segment's parsed meta side-car.
func (r *PlainReader) Meta() *Meta { return r.meta }

// Dim decodes dim's posting into a posting.List with weights already
// unquantized to original (float32) space. ok is false if dim has no
// posting in this segment.
func (r *PlainReader) Dim(dim uint32) (l *posting.List, ok bool, err error) {
	if dim < r.meta.MinDimID || dim > r.meta.MaxDimID || r.meta.PostingCount == 0 {
		return nil, false, nil
	}
	idx := int(dim - r.meta.MinDimID)
	off := idx * plainHeaderSize
	if off+plainHeaderSize > len(r.headers) {
		return nil, false, fmt.Errorf("segment: corrupt headers: dim %d out of range", dim)
	}
	rec := r.headers[off : off+plainHeaderSize]
	start := binary.LittleEndian.Uint64(rec[0:8])
	end := binary.LittleEndian.Uint64(rec[8:16])
	hasQuant := rec[16] != 0
	var params weight.QuantizedParam
	if hasQuant {
		params.Min = weight.F32.Float(binary.LittleEndian.Uint32(rec[17:21]))
		params.Step = weight.F32.Float(binary.LittleEndian.Uint32(rec[21:25]))
	}
	count := binary.LittleEndian.Uint32(rec[25:29])
	if count == 0 {
		return nil, false, nil
	}
	if end > uint64(len(r.payload)) || start > end {
		return nil, false, fmt.Errorf("segment: corrupt header: dim %d byte range [%d,%d) exceeds payload", dim, start, end)
	}
	wkind := r.meta.WeightType
	elemSize := 4 + wkind.Size()
	if r.meta.ElementType == posting.Extended {
		elemSize += wkind.Size()
	}
	buf := r.payload[start:end]
	if len(buf) != int(count)*elemSize {
		return nil, false, fmt.Errorf("segment: corrupt payload: dim %d expected %d bytes, got %d", dim, int(count)*elemSize, len(buf))
	}
	out := &posting.List{
		RowIDs:  make([]uint32, count),
		Weights: make([]float32, count),
	}
	if r.meta.ElementType == posting.Extended {
		out.MaxNext = make([]float32, count)
	}
	for i := 0; i < int(count); i++ {
		e := buf[i*elemSize : (i+1)*elemSize]
		out.RowIDs[i] = binary.LittleEndian.Uint32(e[0:4])
		bits := wkind.GetBytes(e[4 : 4+wkind.Size()])
		out.Weights[i] = decodeWeight(bits, wkind, hasQuant, params)
		if r.meta.ElementType == posting.Extended {
			mnBits := wkind.GetBytes(e[4+wkind.Size():])
			out.MaxNext[i] = decodeWeight(mnBits, wkind, hasQuant, params)
		}
	}
	return out, true, nil
}

func decodeWeight(bits uint32, wkind weight.Kind, quantized bool, params weight.QuantizedParam) float32 {
	if quantized {
		return weight.Unquantize(uint8(bits), params)
	}
	return wkind.Float(bits)
}
