// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cube

import "testing"

func TestBuilderAccumulatesAndMasksChannels(t *testing.T) {
	b := NewBuilder(BuilderParams{
		NT:          4,
		ChannelMask: [4]bool{true, false, true, false},
		NZ:          1, NY: 2, NX: 2,
		FrameBinning: 1,
	})
	if b.NChan() != 2 {
		t.Fatalf("NChan() = %d, want 2", b.NChan())
	}

	b.AddFrame(0, []PhotonSample{
		{Y: 0, X: 0, Channel: 0, MicroTime: 1},
		{Y: 0, X: 1, Channel: 2, MicroTime: 2},
		{Y: 1, X: 0, Channel: 1, MicroTime: 1}, // masked out
	})
	b.Finish()

	c := b.Cube(Float64, []uint64{0, 1, 2, 3}, 1)
	if c.At(1, 0, 0, 0, 0) != 1 {
		t.Errorf("channel 0 bin = %v, want 1", c.At(1, 0, 0, 0, 0))
	}
	if c.At(2, 1, 0, 0, 1) != 1 {
		t.Errorf("channel 2 (output index 1) bin = %v, want 1", c.At(2, 1, 0, 0, 1))
	}
	var total float64
	for _, v := range c.Data {
		total += v
	}
	if total != 2 {
		t.Errorf("total = %v, want 2 (masked channel dropped)", total)
	}
}

func TestBuilderAppliesPerChannelShiftAndRepetitionWraparound(t *testing.T) {
	b := NewBuilder(BuilderParams{
		NT:                8,
		ChannelMask:       [4]bool{true, false, false, false},
		TimeShiftsResUnit: [4]int{-2, 0, 0, 0},
		TRepResUnit:       8,
		NZ:                1, NY: 1, NX: 1,
		FrameBinning: 1,
	})
	// MicroTime=1, shift=-2 -> -1, wrapped mod 8 -> 7.
	b.AddFrame(0, []PhotonSample{{Y: 0, X: 0, Channel: 0, MicroTime: 1}})
	b.Finish()

	c := b.Cube(Float64, nil, 1)
	if c.At(7, 0, 0, 0, 0) != 1 {
		t.Errorf("bin 7 = %v, want 1 (negative shift wrapped by repetition period)", c.At(7, 0, 0, 0, 0))
	}
}

func TestBuilderDownsamplesMicroTime(t *testing.T) {
	b := NewBuilder(BuilderParams{
		NT:                4,
		DownsamplingShift: 2,
		ChannelMask:       [4]bool{true, false, false, false},
		NZ:                1, NY: 1, NX: 1,
		FrameBinning: 1,
	})
	b.AddFrame(0, []PhotonSample{{Y: 0, X: 0, Channel: 0, MicroTime: 9}}) // 9>>2 = 2
	b.Finish()

	c := b.Cube(Float64, nil, 1)
	if c.At(2, 0, 0, 0, 0) != 1 {
		t.Errorf("bin 2 = %v, want 1", c.At(2, 0, 0, 0, 0))
	}
}

func TestBuilderZStackingAssignsPlaneByFrameIndexModNZ(t *testing.T) {
	b := NewBuilder(BuilderParams{
		NT:          2,
		ChannelMask: [4]bool{true, false, false, false},
		NZ:          2, NY: 1, NX: 1,
		FrameBinning: 1,
	})
	b.AddFrame(0, []PhotonSample{{Y: 0, X: 0, Channel: 0, MicroTime: 0}}) // z=0
	b.AddFrame(1, []PhotonSample{{Y: 0, X: 0, Channel: 0, MicroTime: 0}}) // z=1
	b.AddFrame(2, []PhotonSample{{Y: 0, X: 0, Channel: 0, MicroTime: 0}}) // z=0 again
	b.Finish()

	c := b.Cube(Float64, nil, 1)
	if c.At(0, 0, 0, 0, 0) != 2 {
		t.Errorf("z=0 bin = %v, want 2", c.At(0, 0, 0, 0, 0))
	}
	if c.At(0, 0, 1, 0, 0) != 1 {
		t.Errorf("z=1 bin = %v, want 1", c.At(0, 0, 1, 0, 0))
	}
}

func TestBuilderFlushesIntensityFrameOnFrameBinningBoundary(t *testing.T) {
	b := NewBuilder(BuilderParams{
		NT:           1,
		ChannelMask:  [4]bool{true, false, false, false},
		NZ:           1, NY: 1, NX: 1,
		FrameBinning: 2,
	})
	var flushed []int
	var sums []float64
	b.OnIntensityFrame(func(frameIndex int, frame []float64, nz, ny, nx int) {
		flushed = append(flushed, frameIndex)
		var s float64
		for _, v := range frame {
			s += v
		}
		sums = append(sums, s)
	})

	b.AddFrame(0, []PhotonSample{{Y: 0, X: 0, Channel: 0}}) // group 0 -> outFrame 0
	b.AddFrame(1, []PhotonSample{{Y: 0, X: 0, Channel: 0}}) // group 1 -> outFrame 0
	b.AddFrame(2, []PhotonSample{{Y: 0, X: 0, Channel: 0}}) // group 2 -> outFrame 1, flushes outFrame 0
	b.Finish()                                              // flushes outFrame 1

	if len(flushed) != 2 {
		t.Fatalf("flush count = %d, want 2", len(flushed))
	}
	if flushed[0] != 0 || flushed[1] != 1 {
		t.Errorf("flushed frame indices = %v, want [0 1]", flushed)
	}
	if sums[0] != 2 || sums[1] != 1 {
		t.Errorf("flushed sums = %v, want [2 1]", sums)
	}
}
