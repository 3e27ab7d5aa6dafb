// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cubeio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/flimfit/FLIMreader/flim"
	"github.com/flimfit/FLIMreader/flim/cube"
)

const (
	magicNumber   = 0x0000C0BE
	formatVersion = 2
)

// Image is a companion image block: a single 2D raster associated with a
// written cube, e.g. a mean-intensity preview (spec.md §6.3).
type Image struct {
	Name          string // BlockDescription
	Format        int64  // opaque ImageFormat tag, caller-defined
	Width, Height int
	Data          []byte
}

// WriteOptions carries the tags and companion images accompanying a
// written cube.
type WriteOptions struct {
	// ReaderTags are written verbatim, e.g. acquisition parameters this
	// reader itself derived (sync counts, markers used).
	ReaderTags []Tag
	// OriginalTags are written with an "OriginalTags_" name prefix,
	// preserving metadata read back from the source acquisition file.
	OriginalTags map[string]Tag
	Images       []Image
}

// CubeWriter serializes a single z-slice of a cube.Cube, plus metadata and
// companion images, to the container format (spec.md §4.7, §6.3). It
// writes exactly once; create a new CubeWriter per output file.
type CubeWriter struct {
	f          *os.File
	dataPosPos int64
}

// NewCubeWriter creates path and writes the magic number, format version
// and a data-position placeholder (back-patched by Write).
func NewCubeWriter(path string) (*CubeWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", flim.ErrWriteOpenFailed, err)
	}
	w := &CubeWriter{f: f}
	if err := binary.Write(f, binary.LittleEndian, uint32(magicNumber)); err != nil {
		f.Close()
		return nil, err
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(formatVersion)); err != nil {
		f.Close()
		return nil, err
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.dataPosPos = pos
	if err := binary.Write(f, binary.LittleEndian, uint32(0)); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying file handle.
func (w *CubeWriter) Close() error {
	return w.f.Close()
}

// Write serializes z-slice z of c, with the given tags and companion
// images.
func (w *CubeWriter) Write(c *cube.Cube, z int, opts WriteOptions) error {
	raw := serializeSlice(c.Slice(z), c.DataType)
	compressed, err := compressPayload(raw)
	if err != nil {
		return err
	}

	header := []Tag{
		UInt64Tag("NumTimeBins", uint64(c.NT)),
		UInt64Tag("NumX", uint64(c.NX)),
		UInt64Tag("NumY", uint64(c.NY)),
		UInt64Tag("NumChannels", uint64(c.NChan)),
		VectorTag("TimeBins", c.Timepoints),
		StringTag("DataType", c.DataType.String()),
		DateTag("CreationDate", time.Now().Format("2006-01-02T15:04:05")),
		BoolTag("Compressed", true),
		UInt64Tag("CompressedSize", uint64(len(compressed))),
	}
	for _, t := range header {
		if _, err := w.writeTag(t); err != nil {
			return err
		}
	}
	for _, t := range opts.ReaderTags {
		if _, err := w.writeTag(t); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(opts.OriginalTags) {
		t := opts.OriginalTags[key]
		t.Name = "OriginalTags_" + key
		if _, err := w.writeTag(t); err != nil {
			return err
		}
	}

	nextBlockPos, err := w.writeTag(UInt64Tag("NextBlock", 0))
	if err != nil {
		return err
	}
	if _, err := w.writeTag(EndHeaderTag()); err != nil {
		return err
	}

	dataPos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := w.backpatchUint32(w.dataPosPos, uint32(dataPos)); err != nil {
		return err
	}
	if _, err := w.f.Write(compressed); err != nil {
		return err
	}

	for _, img := range opts.Images {
		blockPos, err := w.f.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		if err := w.backpatchUint64(nextBlockPos, uint64(blockPos)); err != nil {
			return err
		}

		imgTags := []Tag{
			StringTag("BlockType", "Image"),
			StringTag("BlockDescription", img.Name),
			Int64Tag("ImageFormat", img.Format),
			UInt64Tag("ImageWidth", uint64(img.Width)),
			UInt64Tag("ImageHeight", uint64(img.Height)),
			UInt64Tag("ImageDataLength", uint64(len(img.Data))),
		}
		for _, t := range imgTags {
			if _, err := w.writeTag(t); err != nil {
				return err
			}
		}
		nextBlockPos, err = w.writeTag(UInt64Tag("NextBlock", 0))
		if err != nil {
			return err
		}
		if _, err := w.writeTag(EndHeaderTag()); err != nil {
			return err
		}
		if _, err := w.f.Write(img.Data); err != nil {
			return err
		}
	}
	return nil
}

// writeTag appends one TLV-encoded tag and returns the absolute file
// offset of its value field, for later back-patching (NextBlock chains).
func (w *CubeWriter) writeTag(t Tag) (int64, error) {
	name := append([]byte(t.Name), 0)
	if len(name) > 255 {
		name = name[:255]
	}
	if err := binary.Write(w.f, binary.LittleEndian, uint32(len(name))); err != nil {
		return 0, err
	}
	if _, err := w.f.Write(name); err != nil {
		return 0, err
	}

	kind := uint16(t.Kind)
	if t.IsVector {
		kind |= isVectorBit
	}
	if err := binary.Write(w.f, binary.LittleEndian, kind); err != nil {
		return 0, err
	}

	payload := encodeTagPayload(t)
	if err := binary.Write(w.f, binary.LittleEndian, uint32(len(payload))); err != nil {
		return 0, err
	}
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	if len(payload) > 0 {
		if _, err := w.f.Write(payload); err != nil {
			return 0, err
		}
	}
	return pos, nil
}

func encodeTagPayload(t Tag) []byte {
	switch {
	case t.IsVector:
		buf := make([]byte, len(t.Vector)*8)
		for i, v := range t.Vector {
			binary.LittleEndian.PutUint64(buf[i*8:], v)
		}
		return buf
	case t.Kind == TagDouble:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, math.Float64bits(t.F64))
		return buf
	case t.Kind == TagUInt64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, t.U64)
		return buf
	case t.Kind == TagInt64:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(t.I64))
		return buf
	case t.Kind == TagBool:
		if t.Bool {
			return []byte{1}
		}
		return []byte{0}
	case t.Kind == TagString || t.Kind == TagDate:
		return []byte(t.Str)
	default:
		return nil
	}
}

func (w *CubeWriter) backpatchUint32(pos int64, v uint32) error {
	return w.backpatch(pos, func() error { return binary.Write(w.f, binary.LittleEndian, v) })
}

func (w *CubeWriter) backpatchUint64(pos int64, v uint64) error {
	return w.backpatch(pos, func() error { return binary.Write(w.f, binary.LittleEndian, v) })
}

func (w *CubeWriter) backpatch(pos int64, write func() error) error {
	cur, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := w.f.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	if err := write(); err != nil {
		return err
	}
	_, err = w.f.Seek(cur, io.SeekStart)
	return err
}

// serializeSlice packs a row-major float64 slice into the bytes of the
// given element type, little-endian (spec.md §6.3).
func serializeSlice(data []float64, dtype cube.DataType) []byte {
	switch dtype {
	case cube.Uint16:
		buf := make([]byte, len(data)*2)
		for i, v := range data {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		}
		return buf
	case cube.Float32:
		buf := make([]byte, len(data)*4)
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		}
		return buf
	default: // cube.Float64
		buf := make([]byte, len(data)*8)
		for i, v := range data {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		return buf
	}
}

// compressPayload zlib-deflates data at the default compression level.
func compressPayload(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %v", flim.ErrCompression, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", flim.ErrCompression, err)
	}
	return buf.Bytes(), nil
}

func sortedKeys(m map[string]Tag) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
