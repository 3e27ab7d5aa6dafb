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
	"strings"

	"github.com/flimfit/FLIMreader/flim"
	"github.com/flimfit/FLIMreader/flim/cube"
)

// DecodedImage is a companion image block read back from a container.
type DecodedImage struct {
	Name          string
	Format        int64
	Width, Height int
	Data          []byte
}

// CubeReader reads back a container written by CubeWriter, primarily to
// verify round-trip fidelity (spec.md §8 invariant 4).
type CubeReader struct {
	f             *os.File
	MagicNumber   uint32
	FormatVersion uint32
	DataPos       uint32
	Tags          map[string]Tag
	nextBlock     uint64
}

// OpenCubeReader opens and parses path's header.
func OpenCubeReader(path string) (*CubeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &CubeReader{f: f, Tags: map[string]Tag{}}

	if err := binary.Read(f, binary.LittleEndian, &r.MagicNumber); err != nil {
		f.Close()
		return nil, err
	}
	if r.MagicNumber != magicNumber {
		f.Close()
		return nil, fmt.Errorf("%w: bad magic number", flim.ErrUnrecognizedFormat)
	}
	if err := binary.Read(f, binary.LittleEndian, &r.FormatVersion); err != nil {
		f.Close()
		return nil, err
	}
	if err := binary.Read(f, binary.LittleEndian, &r.DataPos); err != nil {
		f.Close()
		return nil, err
	}

	for {
		tag, end, err := r.readTag()
		if err != nil {
			f.Close()
			return nil, err
		}
		if end {
			break
		}
		if tag.Name == "NextBlock" {
			r.nextBlock = tag.U64
		}
		r.Tags[tag.Name] = tag
	}
	return r, nil
}

// Close releases the underlying file handle.
func (r *CubeReader) Close() error {
	return r.f.Close()
}

func (r *CubeReader) readTag() (Tag, bool, error) {
	var nameLen uint32
	if err := binary.Read(r.f, binary.LittleEndian, &nameLen); err != nil {
		return Tag{}, false, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := io.ReadFull(r.f, nameBytes); err != nil {
		return Tag{}, false, err
	}
	name := strings.TrimRight(string(nameBytes), "\x00")

	var kindRaw uint16
	if err := binary.Read(r.f, binary.LittleEndian, &kindRaw); err != nil {
		return Tag{}, false, err
	}
	isVector := kindRaw&isVectorBit != 0
	kind := TagKind(kindRaw &^ isVectorBit)

	var length uint32
	if err := binary.Read(r.f, binary.LittleEndian, &length); err != nil {
		return Tag{}, false, err
	}
	if kind == TagEndHeader {
		return Tag{Name: name, Kind: kind}, true, nil
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.f, payload); err != nil {
			return Tag{}, false, err
		}
	}

	t := Tag{Name: name, Kind: kind, IsVector: isVector}
	switch {
	case isVector:
		t.Vector = make([]uint64, length/8)
		for i := range t.Vector {
			t.Vector[i] = binary.LittleEndian.Uint64(payload[i*8:])
		}
	case kind == TagDouble:
		t.F64 = math.Float64frombits(binary.LittleEndian.Uint64(payload))
	case kind == TagUInt64:
		t.U64 = binary.LittleEndian.Uint64(payload)
	case kind == TagInt64:
		t.I64 = int64(binary.LittleEndian.Uint64(payload))
	case kind == TagBool:
		t.Bool = len(payload) > 0 && payload[0] != 0
	case kind == TagString || kind == TagDate:
		t.Str = string(payload)
	}
	return t, false, nil
}

// Cube decompresses and reconstructs the single z-slice (NZ == 1) this
// container holds.
func (r *CubeReader) Cube() (*cube.Cube, error) {
	nt := int(r.Tags["NumTimeBins"].U64)
	nx := int(r.Tags["NumX"].U64)
	ny := int(r.Tags["NumY"].U64)
	nchan := int(r.Tags["NumChannels"].U64)
	timepoints := r.Tags["TimeBins"].Vector
	dtype := parseDataType(r.Tags["DataType"].Str)
	compressedSize := int(r.Tags["CompressedSize"].U64)

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(r.f, compressed); err != nil {
		return nil, err
	}
	raw, err := decompressPayload(compressed)
	if err != nil {
		return nil, err
	}

	c := cube.New(nt, nchan, 1, ny, nx, dtype, timepoints, 0)
	deserializeSlice(raw, dtype, c.Data)
	return c, nil
}

// Images follows the NextBlock chain, reading every companion image
// block.
func (r *CubeReader) Images() ([]DecodedImage, error) {
	var images []DecodedImage
	next := r.nextBlock
	for next != 0 {
		if _, err := r.f.Seek(int64(next), io.SeekStart); err != nil {
			return nil, err
		}
		blockTags := map[string]Tag{}
		var nextBlock uint64
		for {
			tag, end, err := r.readTag()
			if err != nil {
				return nil, err
			}
			if end {
				break
			}
			if tag.Name == "NextBlock" {
				nextBlock = tag.U64
			}
			blockTags[tag.Name] = tag
		}
		dataLen := int(blockTags["ImageDataLength"].U64)
		data := make([]byte, dataLen)
		if _, err := io.ReadFull(r.f, data); err != nil {
			return nil, err
		}
		images = append(images, DecodedImage{
			Name:   blockTags["BlockDescription"].Str,
			Format: blockTags["ImageFormat"].I64,
			Width:  int(blockTags["ImageWidth"].U64),
			Height: int(blockTags["ImageHeight"].U64),
			Data:   data,
		})
		next = nextBlock
	}
	return images, nil
}

func parseDataType(name string) cube.DataType {
	switch name {
	case "uint16_t":
		return cube.Uint16
	case "float":
		return cube.Float32
	default:
		return cube.Float64
	}
}

func deserializeSlice(raw []byte, dtype cube.DataType, out []float64) {
	switch dtype {
	case cube.Uint16:
		for i := range out {
			out[i] = float64(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case cube.Float32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:])))
		}
	default:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:]))
		}
	}
}

func decompressPayload(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", flim.ErrCompression, err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", flim.ErrCompression, err)
	}
	return out, nil
}
