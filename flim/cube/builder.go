// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cube

// PhotonSample is the pixel-mapped photon a Builder consumes. It mirrors
// flim.MappedPhoton minus the Z/Frame fields, which the Builder derives itself
// from the frame index passed to AddFrame (kept decoupled from package
// flim so cube never imports it back).
type PhotonSample struct {
	Y, X      uint16
	Channel   uint8
	MicroTime uint16
}

// BuilderParams configures how photons are binned into a Cube
// (spec.md §4.6).
type BuilderParams struct {
	NT                int
	DownsamplingShift int

	// TimeShiftsResUnit holds a per-raw-channel shift, in native
	// time-resolution units, indexed by the raw channel number.
	TimeShiftsResUnit [4]int
	TRepResUnit       int

	// ChannelMask says which raw channel numbers are kept; the output
	// channel axis only contains the masked-in channels, in ascending
	// raw-channel order.
	ChannelMask [4]bool

	FrameBinning int
	NZ, NY, NX   int
}

// Builder accumulates mapped photons, frame by frame, into a dense
// histogram, and optionally publishes a running intensity image
// (spec.md §4.6, §5).
type Builder struct {
	params    BuilderParams
	chanIndex map[uint8]int
	nChanOut  int

	H []float64 // [t, c, z, y, x]
	F []float64 // [z, y, x] scratch intensity accumulator

	haveFrame    bool
	lastOutFrame int

	onIntensityFrame func(frameIndex int, frame []float64, nz, ny, nx int)
}

// NewBuilder allocates a Builder for the given parameters.
func NewBuilder(params BuilderParams) *Builder {
	if params.FrameBinning < 1 {
		params.FrameBinning = 1
	}
	chanIndex := make(map[uint8]int)
	n := 0
	for ch, on := range params.ChannelMask {
		if on {
			chanIndex[uint8(ch)] = n
			n++
		}
	}
	return &Builder{
		params:    params,
		chanIndex: chanIndex,
		nChanOut:  n,
		H:         make([]float64, params.NT*n*params.NZ*params.NY*params.NX),
		F:         make([]float64, params.NZ*params.NY*params.NX),
	}
}

// NChan returns the number of channels retained after masking.
func (b *Builder) NChan() int { return b.nChanOut }

// OnIntensityFrame registers a callback invoked each time a binned
// intensity preview frame is complete. The slice passed to fn is only
// valid for the duration of the call.
func (b *Builder) OnIntensityFrame(fn func(frameIndex int, frame []float64, nz, ny, nx int)) {
	b.onIntensityFrame = fn
}

func (b *Builder) index(t, ch, z, y, x int) int {
	return (((t*b.nChanOut+ch)*b.params.NZ+z)*b.params.NY+y)*b.params.NX + x
}

// AddFrame accumulates one raw scan frame's photons. idx is a
// monotonically increasing raw-frame counter starting at 0; z :=
// idx % NZ assigns the frame to a z-plane (spec.md's "n_z sub-frames per
// output frame"), and idx / NZ, further grouped by FrameBinning, drives
// the intensity-preview flush callback.
func (b *Builder) AddFrame(idx int, photons []PhotonSample) {
	z := idx % b.params.NZ
	group := idx / b.params.NZ
	outFrame := group / b.params.FrameBinning

	if b.haveFrame && outFrame != b.lastOutFrame {
		b.flush(b.lastOutFrame)
	}
	b.lastOutFrame = outFrame
	b.haveFrame = true

	for _, p := range photons {
		cidx, ok := b.chanIndex[p.Channel]
		if !ok {
			continue
		}
		y, x := int(p.Y), int(p.X)
		if y < 0 || y >= b.params.NY || x < 0 || x >= b.params.NX {
			continue
		}

		m := int(p.MicroTime)
		if int(p.Channel) < len(b.params.TimeShiftsResUnit) {
			m += b.params.TimeShiftsResUnit[p.Channel]
		}
		if b.params.TRepResUnit > 0 {
			m %= b.params.TRepResUnit
			if m < 0 {
				m += b.params.TRepResUnit
			}
		}
		tb := m >> uint(b.params.DownsamplingShift)
		if tb < 0 || tb >= b.params.NT {
			continue
		}

		b.H[b.index(tb, cidx, z, y, x)]++
		b.F[(z*b.params.NY+y)*b.params.NX+x]++
	}
}

// Finish flushes any pending intensity frame. Call once after the last
// AddFrame.
func (b *Builder) Finish() {
	if b.haveFrame {
		b.flush(b.lastOutFrame)
	}
}

func (b *Builder) flush(frameIndex int) {
	if b.onIntensityFrame != nil {
		cp := make([]float64, len(b.F))
		copy(cp, b.F)
		b.onIntensityFrame(frameIndex, cp, b.params.NZ, b.params.NY, b.params.NX)
	}
	for i := range b.F {
		b.F[i] = 0
	}
}

// Cube packages the accumulated histogram into a Cube with the given
// element type and time axis.
func (b *Builder) Cube(dtype DataType, timepoints []uint64, timeResolutionNativePs float64) *Cube {
	c := New(b.params.NT, b.nChanOut, b.params.NZ, b.params.NY, b.params.NX, dtype, timepoints, timeResolutionNativePs)
	copy(c.Data, b.H)
	return c
}
