// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import "errors"

// Error kinds surfaced to the top-level Open/Calibrate/BuildCube entry
// points. Individual invalid records and marker-reordering anomalies are
// swallowed internally (spec'd behavior), never returned here.
var (
	// ErrUnexpectedEOF is returned when a record is truncated mid-read.
	ErrUnexpectedEOF = errors.New("flim: unexpected end of file reading record")
	// ErrSyncMarkersInvalid is returned when the calibrator cannot infer a
	// consistent line/frame grid from the marker stream.
	ErrSyncMarkersInvalid = errors.New("flim: could not interpret sync markers")
	// ErrUnrecognizedFormat is returned when no decoder is registered for a
	// file's extension.
	ErrUnrecognizedFormat = errors.New("flim: unrecognized file format")
	// ErrCompression is returned when the deflate encoder reports a
	// non-terminal status.
	ErrCompression = errors.New("flim: compression error")
	// ErrWriteOpenFailed is returned when the output file cannot be created.
	ErrWriteOpenFailed = errors.New("flim: could not open file for write")
)
