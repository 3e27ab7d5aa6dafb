// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flimfit/FLIMreader/flim/cube"
)

// testFormat mirrors PicoquantT3's wire encoding but is registered under
// a distinct name so OpenReader skips the real pt3 device header, letting
// tests write bare record streams.
var testFormat = RecordFormat{
	Name:              "flimtest",
	Width:             4,
	OverflowIncrement: 1 << 16,
	Decode:            PicoquantT3.Decode,
}

func init() {
	RegisterFormat("flimtest", testFormat)
}

func writeTestFile(t *testing.T, records ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acquisition.flimtest")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if _, err := f.Write(r); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReaderCalibrateAndBuildCube(t *testing.T) {
	path := writeTestFile(t,
		pt3Record(15, uint16(MarkFrame), 0),
		pt3Record(15, uint16(MarkLineStart), 10),
		pt3Record(3, 5, 20), // photon at u=0.1 of line 1 -> x=0
		pt3Record(3, 9, 60), // photon at u=0.5 of line 1 -> x=1
		pt3Record(15, uint16(MarkLineEnd), 110),
		pt3Record(15, uint16(MarkLineStart), 200),
		pt3Record(3, 2, 210), // line 2, u=0.1 -> x=0
		pt3Record(15, uint16(MarkLineEnd), 300),
		pt3Record(15, uint16(MarkFrame), 400),
		pt3Record(15, uint16(MarkLineStart), 410),
		pt3Record(3, 1, 420), // line 3, u=0.1 -> x=0
		pt3Record(15, uint16(MarkLineEnd), 510),
		pt3Record(15, uint16(MarkLineStart), 600),
		pt3Record(3, 3, 610), // line 4, u=0.1 -> x=0
		pt3Record(15, uint16(MarkLineEnd), 700),
		pt3Record(15, uint16(MarkFrame), 800),
	)

	markers := MarkerMask{LineStart: MarkLineStart, LineEnd: MarkLineEnd, Frame: MarkFrame}
	reader, err := OpenReader(path, ReaderParams{
		Markers:           markers,
		LineAveraging:     1,
		DownsamplingShift: 0,
		DataType:          cube.Float64,
		ChannelMask:       [4]bool{true, true, true, true},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	calib, err := reader.Calibrate()
	if err != nil {
		t.Fatal(err)
	}
	if calib.NX != 2 || calib.NLine != 2 {
		t.Fatalf("calib = %+v, want a 2x2 grid", calib)
	}

	c, err := reader.BuildCube(16, 1, 0, nil)
	if err != nil {
		t.Fatal(err)
	}

	var total float64
	for _, v := range c.Data {
		total += v
	}
	if total != 5 {
		t.Errorf("total photon count = %v, want 5", total)
	}
	if c.NX != 2 || c.NY != 2 {
		t.Errorf("cube dims = %dx%d, want 2x2", c.NX, c.NY)
	}
}
