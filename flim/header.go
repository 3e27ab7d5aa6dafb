// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import (
	"encoding/binary"
	"fmt"
	"io"
)

// pt3FixedHeader is the on-disk layout of a Picoquant T3 file's fixed
// header block, preceding a variable-length imaging header whose size is
// given by SpecHeaderLength (in 4-byte words). Header parsing itself is
// an external collaborator to the core decoder (spec.md §1); it exists
// here only to compute the data offset OpenReader needs to construct an
// EventSource.
type pt3FixedHeader struct {
	Ident           [16]byte
	FormatVersion   [6]byte
	CreatorName     [18]byte
	CreatorVersion  [12]byte
	FileTime        [18]byte
	Comment         [256]byte
	NCurves         int32
	BitsPerRecord   int32
	RoutingChannels int32
	NBoards         int32
	ActiveCurve     int32
	MeasurementMode int32
	SubMode         int32
	RangeNo         int32
	Offset          int32
	AcqTime         int32
	StopAt          int32
	StopOnOverflow  int32
	Restart         int32
	RepeatMode      int32
	RepeatsPerCurve int32
	RepeatTime      int32
	RepeatWaitTime  int32
	ScriptName      [20]byte
	Input0CountRate int32
	Input1CountRate int32
	StopAfter       int32
	StopReason      int32
	NRecords        int32
	SpecHeaderLen   int32
	Dimensions      int32
	ImagingIdent    int32
	NX              int32
	NY              int32
}

// PT3Header is the subset of the device header useful to callers: record
// count and the image dimensions recorded by the acquisition software
// (often unreliable, hence SyncCalibrator re-derives them).
type PT3Header struct {
	NRecords int
	NX, NY   int
}

// ParsePT3Header reads a Picoquant T3 file's header from r and returns
// the parsed fields along with the absolute byte offset of the first
// event record.
func ParsePT3Header(r io.Reader) (PT3Header, int64, error) {
	var raw pt3FixedHeader
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return PT3Header{}, 0, fmt.Errorf("flim: reading pt3 header: %w", err)
	}
	if raw.SpecHeaderLen < 0 {
		return PT3Header{}, 0, fmt.Errorf("flim: %w: negative imaging header length", ErrUnrecognizedFormat)
	}

	imagingHeaderBytes := int64(raw.SpecHeaderLen) * 4
	if _, err := io.CopyN(io.Discard, r, imagingHeaderBytes); err != nil {
		return PT3Header{}, 0, fmt.Errorf("flim: skipping pt3 imaging header: %w", err)
	}

	fixedSize := int64(binary.Size(raw))
	return PT3Header{
		NRecords: int(raw.NRecords),
		NX:       int(raw.NX),
		NY:       int(raw.NY),
	}, fixedSize + imagingHeaderBytes, nil
}
