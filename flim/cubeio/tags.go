// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cubeio serializes a cube.Cube (plus metadata and companion
// images) to and from the TLV-tagged, zlib-compressed container format
// described in spec.md §6.3.
package cubeio

// TagKind identifies the payload type of a metadata Tag (spec.md §6.3).
type TagKind uint16

const (
	TagDouble    TagKind = 1
	TagUInt64    TagKind = 2
	TagInt64     TagKind = 3
	TagBool      TagKind = 4
	TagString    TagKind = 5
	TagDate      TagKind = 6
	TagEndHeader TagKind = 7
	TagMetadata  TagKind = 8
)

// isVectorBit is OR'd into the on-disk type field when a tag carries a
// vector payload rather than a scalar one.
const isVectorBit = 0x80

// Tag is one metadata entry in a container's header, in either direction.
// Exactly one of the value fields is meaningful, selected by Kind and
// IsVector.
type Tag struct {
	Name     string
	Kind     TagKind
	IsVector bool

	F64    float64
	U64    uint64
	I64    int64
	Bool   bool
	Str    string
	Vector []uint64 // semantic unit is caller-defined; used for TimeBins.
}

func DoubleTag(name string, v float64) Tag { return Tag{Name: name, Kind: TagDouble, F64: v} }
func UInt64Tag(name string, v uint64) Tag  { return Tag{Name: name, Kind: TagUInt64, U64: v} }
func Int64Tag(name string, v int64) Tag    { return Tag{Name: name, Kind: TagInt64, I64: v} }
func BoolTag(name string, v bool) Tag      { return Tag{Name: name, Kind: TagBool, Bool: v} }
func StringTag(name, v string) Tag         { return Tag{Name: name, Kind: TagString, Str: v} }
func DateTag(name, v string) Tag           { return Tag{Name: name, Kind: TagDate, Str: v} }

// VectorTag builds a u64-vector tag, used for the TimeBins axis.
func VectorTag(name string, v []uint64) Tag {
	return Tag{Name: name, Kind: TagUInt64, IsVector: true, Vector: v}
}

// EndHeaderTag is the zero-length sentinel tag terminating a header or
// block.
func EndHeaderTag() Tag { return Tag{Name: "EndHeader", Kind: TagEndHeader} }
