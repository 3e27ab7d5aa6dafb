// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package flim

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/flimfit/FLIMreader/flim/cube"
)

// ReaderParams configures a Reader's calibration and cube-building
// behavior. Zero values pick the conservative defaults described in
// spec.md §4.3-§4.6.
type ReaderParams struct {
	Markers       MarkerMask
	LineAveraging int // 1 means no averaging.

	// NY, NX are grid hints; 0 derives them from the marker stream.
	NY, NX int
	// NZ is the number of z-planes multiplexed across consecutive raw
	// scan frames; 1 means no z-stacking.
	NZ int
	// FrameBinning groups this many z-stacks (NZ consecutive raw scan
	// frames each) into one published intensity-preview frame.
	FrameBinning int

	// ChannelMask selects which raw channel numbers are kept in the
	// output cube; an all-false mask keeps every channel.
	ChannelMask [4]bool

	DownsamplingShift int
	DataType          cube.DataType
}

func (p ReaderParams) normalize() ReaderParams {
	if p.LineAveraging < 1 {
		p.LineAveraging = 1
	}
	if p.NZ < 1 {
		p.NZ = 1
	}
	if p.FrameBinning < 1 {
		p.FrameBinning = 1
	}
	if p.ChannelMask == ([4]bool{}) {
		p.ChannelMask = [4]bool{true, true, true, true}
	}
	return p
}

// Reader is the top-level orchestrator tying EventSource, Decoder,
// Calibrate, FrameAssembler, PhotonMapper and cube.Builder into a single
// per-file pipeline (spec.md §5), plus a background worker that keeps a
// live intensity preview up to date.
type Reader struct {
	path   string
	format RecordFormat
	params ReaderParams

	dataOffset int64
	timeShifts [4]float64

	src *EventSource
	dec *Decoder

	calibrated bool
	calib      SyncCalibration

	mu           sync.Mutex
	latest       []float64
	latestNZ     int
	latestNY     int
	latestNX     int
	latestFrame  int

	terminate int32
	wg        sync.WaitGroup

	onIntensityFrame func(frameIndex int, frame []float64, nz, ny, nx int)
}

// OnIntensityFrame registers a callback invoked, outside the Reader's
// internal lock, each time StartRealignment's background worker
// publishes a new intensity frame. Typically wired to a preview server.
func (r *Reader) OnIntensityFrame(fn func(frameIndex int, frame []float64, nz, ny, nx int)) {
	r.onIntensityFrame = fn
}

// OpenReader opens path, dispatching to a registered RecordFormat by file
// extension (spec.md's "polymorphism over file formats" REDESIGN FLAG),
// parses the device header to find the first event record, and loads the
// PicoquantLoaderSettings.info sidecar if present.
func OpenReader(path string, params ReaderParams) (*Reader, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	format, ok := LookupFormat(ext)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognizedFormat, ext)
	}

	dataOffset, err := headerDataOffset(path, format)
	if err != nil {
		return nil, err
	}

	shifts, err := LoadShiftSettings(path)
	if err != nil {
		return nil, err
	}

	src, err := NewEventSource(path, format, dataOffset)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		path:       path,
		format:     format,
		params:     params.normalize(),
		dataOffset: dataOffset,
		timeShifts: shifts,
		src:        src,
		dec:        NewDecoder(src, format, params.Markers),
	}
	return r, nil
}

// headerDataOffset parses the device header needed to locate the first
// event record. Only the Picoquant T3 header is understood; other
// registered formats are assumed to start their event stream at offset 0.
func headerDataOffset(path string, format RecordFormat) (int64, error) {
	if format.Name != PicoquantT3.Name {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("flim: %w", err)
	}
	defer f.Close()
	_, offset, err := ParsePT3Header(f)
	return offset, err
}

// Close releases the underlying file handle and stops the background
// realignment worker, if running.
func (r *Reader) Close() error {
	r.StopRealignment()
	return r.src.Close()
}

// Calibrate runs the one-pass sync calibration (spec.md §4.3) if it has
// not already been run, and caches the result. Calibration is immutable
// for the lifetime of the Reader once computed.
func (r *Reader) Calibrate() (SyncCalibration, error) {
	if r.calibrated {
		return r.calib, nil
	}
	if err := r.src.SetToStart(); err != nil {
		return SyncCalibration{}, err
	}
	r.dec.Reset()

	calib, err := Calibrate(r.dec, CalibrationParams{
		Markers:       r.params.Markers,
		LineAveraging: r.params.LineAveraging,
		NY:            r.params.NY,
		NX:            r.params.NX,
	})
	if err != nil {
		return SyncCalibration{}, err
	}
	r.calib = calib
	r.calibrated = true
	return calib, nil
}

// NativeTimeAxis returns the timepoint axis for nNativeBins native bins of
// width timeResolutionNativePs picoseconds after applying the Reader's
// configured downsampling shift and, when tRepPs > 0, truncation to the
// repetition period. The undownsampled axis itself is not returned.
func (r *Reader) NativeTimeAxis(nNativeBins int, timeResolutionNativePs, tRepPs float64) ([]uint64, error) {
	return cube.BuildTimeAxis(nNativeBins, timeResolutionNativePs, r.params.DownsamplingShift, tRepPs)
}

// BuildCube runs the full per-frame pipeline — FrameAssembler then
// PhotonMapper then cube.Builder — over the whole stream and returns the
// accumulated cube. Calibrate must have been called first. onIntensityFrame,
// if non-nil, is invoked synchronously as each binned preview frame
// completes (spec.md §5).
func (r *Reader) BuildCube(nNativeBins int, timeResolutionNativePs, tRepPs float64, onIntensityFrame func(frameIndex int, frame []float64, nz, ny, nx int)) (*cube.Cube, error) {
	if !r.calibrated {
		return nil, fmt.Errorf("flim: BuildCube called before Calibrate")
	}

	timepoints, err := r.NativeTimeAxis(nNativeBins, timeResolutionNativePs, tRepPs)
	if err != nil {
		return nil, err
	}

	if err := r.src.SetToStart(); err != nil {
		return nil, err
	}
	r.dec.Reset()

	builder := cube.NewBuilder(cube.BuilderParams{
		NT:                len(timepoints),
		DownsamplingShift: r.params.DownsamplingShift,
		TimeShiftsResUnit: cube.TimeShiftsResUnit(r.timeShifts, timeResolutionNativePs),
		TRepResUnit:       cube.TRepResUnit(tRepPs, timeResolutionNativePs),
		ChannelMask:       r.params.ChannelMask,
		FrameBinning:      r.params.FrameBinning,
		NZ:                r.params.NZ,
		NY:                r.calib.NLine,
		NX:                r.calib.NX,
	})
	builder.OnIntensityFrame(onIntensityFrame)

	mapper := NewPhotonMapper(r.calib, r.params.Markers, r.params.LineAveraging)
	assembler := NewFrameAssembler(r.dec, r.params.Markers, r.calib.NLine)

	idx := 0
	for atomic.LoadInt32(&r.terminate) == 0 {
		events, ok, err := assembler.LoadNext()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		builder.AddFrame(idx, toSamples(mapper.MapFrame(events)))
		idx++
	}
	builder.Finish()

	return builder.Cube(r.params.DataType, timepoints, timeResolutionNativePs), nil
}

func toSamples(photons []MappedPhoton) []cube.PhotonSample {
	out := make([]cube.PhotonSample, len(photons))
	for i, p := range photons {
		out[i] = cube.PhotonSample{Y: p.Y, X: p.X, Channel: p.Channel, MicroTime: p.MicroTime}
	}
	return out
}

// StartRealignment launches a background worker that re-reads the whole
// stream once, republishing the latest intensity frame under a mutex as it
// goes, until the end of the stream or until StopRealignment is called,
// whichever comes first (spec.md §5's live-preview
// collaborator). Calibrate must have been called first; the worker opens
// its own EventSource so it never races the synchronous BuildCube pass.
func (r *Reader) StartRealignment(nNativeBins int, timeResolutionNativePs, tRepPs float64) error {
	if !r.calibrated {
		return fmt.Errorf("flim: StartRealignment called before Calibrate")
	}
	atomic.StoreInt32(&r.terminate, 0)

	src, err := NewEventSource(r.path, r.format, r.dataOffset)
	if err != nil {
		return err
	}
	dec := NewDecoder(src, r.format, r.params.Markers)
	assembler := NewFrameAssembler(dec, r.params.Markers, r.calib.NLine)
	mapper := NewPhotonMapper(r.calib, r.params.Markers, r.params.LineAveraging)

	timepoints, err := r.NativeTimeAxis(nNativeBins, timeResolutionNativePs, tRepPs)
	if err != nil {
		src.Close()
		return err
	}

	builder := cube.NewBuilder(cube.BuilderParams{
		NT:                len(timepoints),
		DownsamplingShift: r.params.DownsamplingShift,
		TimeShiftsResUnit: cube.TimeShiftsResUnit(r.timeShifts, timeResolutionNativePs),
		TRepResUnit:       cube.TRepResUnit(tRepPs, timeResolutionNativePs),
		ChannelMask:       r.params.ChannelMask,
		FrameBinning:      r.params.FrameBinning,
		NZ:                r.params.NZ,
		NY:                r.calib.NLine,
		NX:                r.calib.NX,
	})
	builder.OnIntensityFrame(func(frameIndex int, frame []float64, nz, ny, nx int) {
		r.mu.Lock()
		r.latest = frame
		r.latestFrame = frameIndex
		r.latestNZ, r.latestNY, r.latestNX = nz, ny, nx
		r.mu.Unlock()
		if r.onIntensityFrame != nil {
			r.onIntensityFrame(frameIndex, frame, nz, ny, nx)
		}
	})

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer src.Close()

		idx := 0
		for atomic.LoadInt32(&r.terminate) == 0 {
			events, ok, err := assembler.LoadNext()
			if err != nil || !ok {
				break
			}
			builder.AddFrame(idx, toSamples(mapper.MapFrame(events)))
			idx++
		}
		builder.Finish()
	}()
	return nil
}

// StopRealignment requests the background worker to stop and waits for
// it to exit. It sets the Reader's termination flag even if no worker is
// running; a BuildCube call made while the flag is set processes no frames.
// StartRealignment clears the flag.
func (r *Reader) StopRealignment() {
	atomic.StoreInt32(&r.terminate, 1)
	r.wg.Wait()
}

// LatestIntensityFrame returns the most recently published preview frame,
// or ok==false if none has been published yet.
func (r *Reader) LatestIntensityFrame() (frame []float64, nz, ny, nx, frameIndex int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return nil, 0, 0, 0, 0, false
	}
	cp := make([]float64, len(r.latest))
	copy(cp, r.latest)
	return cp, r.latestNZ, r.latestNY, r.latestNX, r.latestFrame, true
}
