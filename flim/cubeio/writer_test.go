// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cubeio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flimfit/FLIMreader/flim/cube"
)

func writeJunkFile(path string) error {
	return os.WriteFile(path, []byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 0, 0, 0, 0}, 0o644)
}

func TestCubeWriterReaderRoundTrip(t *testing.T) {
	const nt, nchan, ny, nx = 8, 1, 16, 16
	c := cube.New(nt, nchan, 1, ny, nx, cube.Float32, []uint64{0, 1, 2, 3, 4, 5, 6, 7}, 1)
	for i := range c.Data {
		c.Data[i] = float64(i % 251)
	}

	img := Image{
		Name:   "intensity",
		Format: 1,
		Width:  nx,
		Height: ny,
		Data:   make([]byte, ny*nx*2),
	}
	for i := range img.Data {
		img.Data[i] = byte(i)
	}

	path := filepath.Join(t.TempDir(), "out.flimcube")
	w, err := NewCubeWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	opts := WriteOptions{
		ReaderTags: []Tag{
			UInt64Tag("SyncCountPerLine", 1000),
			DoubleTag("SyncCountsInterline", 1900.0),
		},
		OriginalTags: map[string]Tag{
			"Comment": StringTag("Comment", "test acquisition"),
		},
		Images: []Image{img},
	}
	if err := w.Write(c, 0, opts); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenCubeReader(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.MagicNumber != magicNumber {
		t.Errorf("MagicNumber = %#x, want %#x", r.MagicNumber, magicNumber)
	}
	if r.Tags["SyncCountPerLine"].U64 != 1000 {
		t.Errorf("SyncCountPerLine = %d, want 1000", r.Tags["SyncCountPerLine"].U64)
	}
	if r.Tags["OriginalTags_Comment"].Str != "test acquisition" {
		t.Errorf("OriginalTags_Comment = %q, want %q", r.Tags["OriginalTags_Comment"].Str, "test acquisition")
	}

	got, err := r.Cube()
	if err != nil {
		t.Fatal(err)
	}
	if got.NT != nt || got.NX != nx || got.NY != ny || got.NChan != nchan {
		t.Fatalf("dims = %+v, want NT=%d NX=%d NY=%d NChan=%d", got, nt, nx, ny, nchan)
	}
	want := c.Slice(0)
	for i, v := range want {
		// float32 round-trip loses precision beyond ~7 significant digits;
		// the test data is small integers so this is exact.
		if got.Data[i] != float64(float32(v)) {
			t.Fatalf("Data[%d] = %v, want %v", i, got.Data[i], float64(float32(v)))
		}
	}

	images, err := r.Images()
	if err != nil {
		t.Fatal(err)
	}
	if len(images) != 1 {
		t.Fatalf("len(images) = %d, want 1", len(images))
	}
	if images[0].Name != "intensity" || images[0].Width != nx || images[0].Height != ny {
		t.Fatalf("images[0] = %+v", images[0])
	}
	if len(images[0].Data) != len(img.Data) {
		t.Fatalf("len(images[0].Data) = %d, want %d", len(images[0].Data), len(img.Data))
	}
	for i := range img.Data {
		if images[0].Data[i] != img.Data[i] {
			t.Fatalf("images[0].Data[%d] = %d, want %d", i, images[0].Data[i], img.Data[i])
		}
	}
}

func TestCubeReaderRejectsBadMagicNumber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.flimcube")
	if err := writeJunkFile(path); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenCubeReader(path); err == nil {
		t.Fatal("expected an error opening a file with the wrong magic number")
	}
}
