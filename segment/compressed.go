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

	"github.com/sneller-labs/sidx/compr"
	"github.com/sneller-labs/sidx/packedints"
	"github.com/sneller-labs/sidx/posting"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/weight"
)

// compressedHeaderSize is the fixed byte size of one dim's compressed
// header (spec §4.6), in on-disk order: row_ids_start(8) row_ids_end(8)
// has_quant(1) quant_min(4) quant_step(4) block_kind(1) blocks_start(8)
// blocks_end(8) row_ids_count(4) max_row_id(4).
const compressedHeaderSize = 50

// blockDescFixedSize is the fixed-layout part of a block descriptor
// (spec §4.6), excluding the trailing weights/max_next_weights arrays:
// row_id_start(4) block_offset(8) row_ids_compressed_size(2)
// row_ids_count(1) num_bits(1).
const blockDescFixedSize = 16

// varintTailSentinel marks a block descriptor whose row_ids were
// encoded with the varint tail codec rather than bit-packing (spec
// §4.2's "trailing partial block"). Legitimate bit-packed widths never
// exceed 32, so this value cannot collide with a real num_bits.
const varintTailSentinel = 0xFF

func compressedHeadersPath(dir, segID string) string { return filepath.Join(dir, segID+".headers") }
func compressedRowIDsPath(dir, segID string) string  { return filepath.Join(dir, segID+".row_ids") }
func compressedBlocksPath(dir, segID string) string  { return filepath.Join(dir, segID+".blocks") }

// WriteCompressed serializes idx into the block-compressed mmap layout
// (spec §4.6). archive, if non-empty, names a compr.Compressor ("zstd"
// or "s2") applied as a secondary envelope over the finished row_ids
// file -- an optional pass SPEC_FULL.md's domain stack adds for cold
// segments, on top of the mandatory bit-packing.
func WriteCompressed(dir, segID string, idx *ramindex.Index, ekind posting.Kind, wkind weight.Kind, quantized bool, archive string) error {
	if quantized && wkind != weight.U8 {
		return fmt.Errorf("segment: quantized requires weight_type u8")
	}
	dims := idx.SortedDims()
	headers := make([]byte, 0, len(dims)*compressedHeaderSize)
	rowIDBytes := make([]byte, 0, 4096)
	blocks := make([]byte, 0, 4096)

	minDim, maxDim := idx.Metrics.MinDimID, idx.Metrics.MaxDimID
	if len(dims) > 0 {
		for d := minDim; ; d++ {
			l := idx.Postings[d]
			rec := make([]byte, compressedHeaderSize)
			rowIDsStart := uint64(len(rowIDBytes))
			blocksStart := uint64(len(blocks))
			if l != nil {
				var params weight.QuantizedParam
				if quantized {
					lo, hi := l.MinMaxWeight()
					params = weight.GenParams(lo, hi)
					rec[16] = 1
					binary.LittleEndian.PutUint32(rec[17:], mathFloat32bits(params.Min))
					binary.LittleEndian.PutUint32(rec[21:], mathFloat32bits(params.Step))
				}
				n := len(l.RowIDs)
				for off := 0; off < n; off += packedints.BlockSize {
					end := off + packedints.BlockSize
					if end > n {
						end = n
					}
					chunk := l.RowIDs[off:end]
					var pred uint32
					if chunk[0] > 0 {
						pred = chunk[0] - 1
					}
					blockOffset := uint64(len(rowIDBytes))
					var numBits uint8
					before := len(rowIDBytes)
					if len(chunk) == packedints.BlockSize {
						rowIDBytes, numBits = packedints.EncodeBlockFromRowIDs(rowIDBytes, chunk, pred)
					} else {
						deltas := packedints.Deltas(make([]uint32, 0, len(chunk)), chunk, pred)
						rowIDBytes = packedints.EncodeTail(rowIDBytes, deltas)
						numBits = varintTailSentinel
					}
					compressedSize := len(rowIDBytes) - before

					desc := make([]byte, blockDescFixedSize)
					binary.LittleEndian.PutUint32(desc[0:4], chunk[0])
					binary.LittleEndian.PutUint64(desc[4:12], blockOffset)
					binary.LittleEndian.PutUint16(desc[12:14], uint16(compressedSize))
					desc[14] = byte(len(chunk))
					desc[15] = numBits
					blocks = append(blocks, desc...)

					wbuf := make([]byte, packedints.BlockSize*wkind.Size())
					for i, rowID := range chunk {
						_ = rowID
						bits := weightBits(l.Weights[off+i], wkind, quantized, params)
						wkind.PutBytes(wbuf[i*wkind.Size():], bits)
					}
					blocks = append(blocks, wbuf...)
					if ekind == posting.Extended {
						mbuf := make([]byte, packedints.BlockSize*wkind.Size())
						for i := range chunk {
							bits := weightBits(l.MaxNext[off+i], wkind, quantized, params)
							wkind.PutBytes(mbuf[i*wkind.Size():], bits)
						}
						blocks = append(blocks, mbuf...)
					}
				}
				binary.LittleEndian.PutUint32(rec[42:], uint32(n))
				binary.LittleEndian.PutUint32(rec[46:], l.LastRowID())
			}
			if ekind == posting.Extended {
				rec[25] = 1
			}
			binary.LittleEndian.PutUint64(rec[0:8], rowIDsStart)
			binary.LittleEndian.PutUint64(rec[8:16], uint64(len(rowIDBytes)))
			binary.LittleEndian.PutUint64(rec[26:34], blocksStart)
			binary.LittleEndian.PutUint64(rec[34:42], uint64(len(blocks)))
			headers = append(headers, rec...)
			if d == maxDim {
				break
			}
		}
	} else {
		minDim, maxDim = 0, 0
	}

	rawSize := int64(len(rowIDBytes))
	rowIDsOut := rowIDBytes
	if archive != "" {
		c := compr.Compression(archive)
		if c == nil {
			return fmt.Errorf("segment: unknown row_ids_archive %q", archive)
		}
		rowIDsOut = c.Compress(rowIDBytes, nil)
	}

	if err := atomicWriteFile(compressedHeadersPath(dir, segID), headers); err != nil {
		return err
	}
	if err := atomicWriteFile(compressedRowIDsPath(dir, segID), rowIDsOut); err != nil {
		return err
	}
	if err := atomicWriteFile(compressedBlocksPath(dir, segID), blocks); err != nil {
		return err
	}

	m := &Meta{
		PostingCount:  uint32(len(dims)),
		VectorCount:   idx.Metrics.VectorCount,
		MinRowID:      idx.Metrics.MinRowID,
		MaxRowID:      idx.Metrics.MaxRowID,
		MinDimID:      minDim,
		MaxDimID:      maxDim,
		Quantized:     quantized,
		WeightType:    wkind,
		ElementType:   ekind,
		Version:       Version{StorageKind: StorageCompressedMmap, Revision: CurrentRevision},
		RowIDsArchive: archive,
		RowIDsRawSize: rawSize,
	}
	return WriteMeta(dir, segID, m)
}

func atomicWriteFile(path string, b []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return fmt.Errorf("segment: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("segment: rename %s into place: %w", path, err)
	}
	return nil
}

// CompressedReader is an open, mmap'd compressed-format segment (spec
// §4.6).
type CompressedReader struct {
	meta    *Meta
	headers []byte
	rowIDs  []byte
	blocks  []byte
}

// OpenCompressed mmaps segID's headers, row_ids and blocks files under
// dir and loads its meta side-car. If the meta records a secondary
// row_ids_archive compressor, the row_ids file is fully decompressed
// into a heap buffer instead of mmap'd. Either way, no block is
// decoded here; Dim decodes a posting's blocks when it is called.
func OpenCompressed(dir, segID string) (*CompressedReader, error) {
	m, err := ReadMeta(dir, segID)
	if err != nil {
		return nil, err
	}
	if m.Version.StorageKind != StorageCompressedMmap {
		return nil, fmt.Errorf("segment: %s is not a compressed mmap segment", segID)
	}
	headers, err := mmap(compressedHeadersPath(dir, segID))
	if err != nil {
		return nil, fmt.Errorf("segment: mmap headers: %w", err)
	}
	blocks, err := mmap(compressedBlocksPath(dir, segID))
	if err != nil {
		munmap(headers)
		return nil, fmt.Errorf("segment: mmap blocks: %w", err)
	}
	var rowIDs []byte
	if m.RowIDsArchive != "" {
		raw, err := os.ReadFile(compressedRowIDsPath(dir, segID))
		if err != nil {
			munmap(headers)
			munmap(blocks)
			return nil, fmt.Errorf("segment: read row_ids: %w", err)
		}
		d := compr.Decompression(m.RowIDsArchive)
		if d == nil {
			munmap(headers)
			munmap(blocks)
			return nil, fmt.Errorf("segment: unknown row_ids_archive %q", m.RowIDsArchive)
		}
		dst := make([]byte, m.RowIDsRawSize)
		if len(dst) > 0 {
			if err := d.Decompress(raw, dst); err != nil {
				munmap(headers)
				munmap(blocks)
				return nil, fmt.Errorf("segment: decompress row_ids: %w", err)
			}
		}
		rowIDs = dst
	} else {
		rowIDs, err = mmap(compressedRowIDsPath(dir, segID))
		if err != nil {
			munmap(headers)
			munmap(blocks)
			return nil, fmt.Errorf("segment: mmap row_ids: %w", err)
		}
	}
	return &CompressedReader{meta: m, headers: headers, rowIDs: rowIDs, blocks: blocks}, nil
}

// Close unmaps the segment's files.
func (r *CompressedReader) Close() error {
	err1 := munmap(r.headers)
	err2 := munmap(r.blocks)
	var err3 error
	if r.meta.RowIDsArchive == "" {
		err3 = munmap(r.rowIDs)
	}
	for _, e := range []error{err1, err2, err3} {
		if e != nil {
			return e
		}
	}
	return nil
}

// Meta returns the segment's parsed meta side-car.
func (r *CompressedReader) Meta() *Meta { return r.meta }

// Dim decodes dim's posting into a posting.List with weights already
// unquantized to original (float32) space. Every 128-row block of the
// posting is decoded on each call; blocks are not decoded one at a time
// as an iterator reaches them, and nothing is cached between calls.
// ok is false if dim has no posting in this segment.
func (r *CompressedReader) Dim(dim uint32) (l *posting.List, ok bool, err error) {
	if dim < r.meta.MinDimID || dim > r.meta.MaxDimID || r.meta.PostingCount == 0 {
		return nil, false, nil
	}
	idx := int(dim - r.meta.MinDimID)
	off := idx * compressedHeaderSize
	if off+compressedHeaderSize > len(r.headers) {
		return nil, false, fmt.Errorf("segment: corrupt headers: dim %d out of range", dim)
	}
	rec := r.headers[off : off+compressedHeaderSize]
	rowIDsStart := binary.LittleEndian.Uint64(rec[0:8])
	rowIDsEnd := binary.LittleEndian.Uint64(rec[8:16])
	hasQuant := rec[16] != 0
	var params weight.QuantizedParam
	if hasQuant {
		params.Min = weight.F32.Float(binary.LittleEndian.Uint32(rec[17:21]))
		params.Step = weight.F32.Float(binary.LittleEndian.Uint32(rec[21:25]))
	}
	extended := rec[25] != 0
	blocksStart := binary.LittleEndian.Uint64(rec[26:34])
	blocksEnd := binary.LittleEndian.Uint64(rec[34:42])
	count := binary.LittleEndian.Uint32(rec[42:46])
	if count == 0 {
		return nil, false, nil
	}
	if rowIDsEnd > uint64(len(r.rowIDs)) || blocksEnd > uint64(len(r.blocks)) || rowIDsStart > rowIDsEnd || blocksStart > blocksEnd {
		return nil, false, fmt.Errorf("segment: corrupt header: dim %d offsets exceed file bounds", dim)
	}
	wkind := r.meta.WeightType
	blockBytes := blockDescFixedSize + packedints.BlockSize*wkind.Size()
	if extended {
		blockBytes += packedints.BlockSize * wkind.Size()
	}

	out := &posting.List{
		RowIDs:  make([]uint32, 0, count),
		Weights: make([]float32, 0, count),
	}
	if extended {
		out.MaxNext = make([]float32, 0, count)
	}

	blockData := r.blocks[blocksStart:blocksEnd]
	rowIDData := r.rowIDs[rowIDsStart:rowIDsEnd]
	remaining := int(count)
	for p := 0; remaining > 0; p += blockBytes {
		if p+blockDescFixedSize > len(blockData) {
			return nil, false, fmt.Errorf("segment: corrupt blocks: dim %d truncated descriptor", dim)
		}
		desc := blockData[p : p+blockDescFixedSize]
		rowIDStart := binary.LittleEndian.Uint32(desc[0:4])
		blockOffset := binary.LittleEndian.Uint64(desc[4:12])
		compressedSize := binary.LittleEndian.Uint16(desc[12:14])
		n := int(desc[14])
		numBits := desc[15]

		if int(blockOffset)+int(compressedSize) > len(rowIDData) {
			return nil, false, fmt.Errorf("segment: corrupt blocks: dim %d block row_ids out of range", dim)
		}
		src := rowIDData[blockOffset : blockOffset+uint64(compressedSize)]
		var pred uint32
		if rowIDStart > 0 {
			pred = rowIDStart - 1
		}
		var rowIDs []uint32
		var consumed int
		if numBits == varintTailSentinel {
			rowIDs, consumed, err = packedints.DecodeBlockToRowIDsViaTail(src, n, pred)
		} else {
			rowIDs, consumed, err = packedints.DecodeBlockToRowIDs(nil, src, n, numBits, pred)
		}
		if err != nil {
			return nil, false, fmt.Errorf("segment: dim %d: %w", dim, err)
		}
		if consumed != int(compressedSize) {
			return nil, false, fmt.Errorf("segment: corrupt blocks: dim %d consumed %d bytes, header says %d", dim, consumed, compressedSize)
		}
		out.RowIDs = append(out.RowIDs, rowIDs...)

		wbuf := blockData[p+blockDescFixedSize : p+blockDescFixedSize+packedints.BlockSize*wkind.Size()]
		for i := 0; i < n; i++ {
			bits := wkind.GetBytes(wbuf[i*wkind.Size():])
			out.Weights = append(out.Weights, decodeWeight(bits, wkind, hasQuant, params))
		}
		if extended {
			mbuf := blockData[p+blockDescFixedSize+packedints.BlockSize*wkind.Size() : p+blockBytes]
			for i := 0; i < n; i++ {
				bits := wkind.GetBytes(mbuf[i*wkind.Size():])
				out.MaxNext = append(out.MaxNext, decodeWeight(bits, wkind, hasQuant, params))
			}
		}
		remaining -= n
	}
	return out, true, nil
}
