// Copyright 2024 The FLIMreader Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// flimcube reconstructs a time-resolved data cube from a TTTR photon
// event stream and writes it to the container format.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/flimfit/FLIMreader/flim"
	"github.com/flimfit/FLIMreader/flim/cube"
	"github.com/flimfit/FLIMreader/flim/cubeio"
	"github.com/flimfit/FLIMreader/flim/preview"
	"github.com/maruel/interrupt"
)

type options struct {
	markers           flim.MarkerMask
	lineAveraging     int
	ny, nx, nz        int
	frameBinning      int
	downsamplingShift int
	nativeTimeBins    int
	timeResolutionPs  float64
	tRepPs            float64
	dataType          cube.DataType
	channels          [4]bool
	outDir            string
	port              int
}

func parseMarkerMask(pixel, lineStart, lineEnd, frame int) flim.MarkerMask {
	return flim.MarkerMask{
		Pixel:     flim.Mark(pixel),
		LineStart: flim.Mark(lineStart),
		LineEnd:   flim.Mark(lineEnd),
		Frame:     flim.Mark(frame),
	}
}

func parseChannels(s string) [4]bool {
	var mask [4]bool
	if s == "" {
		return [4]bool{true, true, true, true}
	}
	for _, part := range strings.Split(s, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n >= 0 && n < len(mask) {
			mask[n] = true
		}
	}
	return mask
}

func parseDataType(s string) cube.DataType {
	switch s {
	case "uint16":
		return cube.Uint16
	case "double":
		return cube.Float64
	default:
		return cube.Float32
	}
}

func mainImpl() error {
	cpuprofile := flag.String("cpuprofile", "", "dump CPU profile in file")
	outDir := flag.String("out", ".", "directory to write .flim.bin cube files into")
	port := flag.Int("port", 0, "http port for live intensity preview, 0 to disable")
	watch := flag.Bool("watch", false, "watch the input path (a directory) for new .pt3 files instead of processing one file")

	pixelBit := flag.Int("pixel-marker", 0, "pixel marker bitmask, 0 if absent")
	lineStartBit := flag.Int("line-start-marker", 1, "line-start marker bitmask")
	lineEndBit := flag.Int("line-end-marker", 2, "line-end marker bitmask")
	frameBit := flag.Int("frame-marker", 4, "frame marker bitmask, 0 if absent")

	lineAveraging := flag.Int("line-averaging", 1, "number of lines averaged together by the scanner")
	ny := flag.Int("ny", 0, "pixel grid height, 0 to derive from markers")
	nx := flag.Int("nx", 0, "pixel grid width, 0 to derive from markers")
	nz := flag.Int("nz", 1, "number of z-planes multiplexed across consecutive scan frames")
	frameBinning := flag.Int("frame-binning", 1, "z-stacks (nz raw scan frames each) per published intensity-preview frame")

	nativeTimeBins := flag.Int("ntbins", 4096, "number of native (undownsampled) micro-time bins")
	timeResolutionPs := flag.Float64("tres", 4, "native time resolution, picoseconds per micro-time unit")
	tRepPs := flag.Float64("trep", 0, "laser repetition period in picoseconds, 0 if unconstrained")
	downsampling := flag.Int("downsampling", 0, "time-bin downsampling shift (output bin width is 2^shift times native)")

	channels := flag.String("channels", "", "comma-separated raw channel numbers to keep, empty keeps all four")
	dataType := flag.String("datatype", "float", "cube element type: uint16, float or double")

	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if !*verbose {
		log.SetOutput(ioutil.Discard)
	}
	log.SetFlags(log.Lmicroseconds)

	if flag.NArg() != 1 {
		return fmt.Errorf("supply a single input path (a .pt3 file, or a directory with -watch)")
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	interrupt.HandleCtrlC()

	opt := options{
		markers:           parseMarkerMask(*pixelBit, *lineStartBit, *lineEndBit, *frameBit),
		lineAveraging:     *lineAveraging,
		ny:                *ny,
		nx:                *nx,
		nz:                *nz,
		frameBinning:      *frameBinning,
		downsamplingShift: *downsampling,
		nativeTimeBins:    *nativeTimeBins,
		timeResolutionPs:  *timeResolutionPs,
		tRepPs:            *tRepPs,
		dataType:          parseDataType(*dataType),
		channels:          parseChannels(*channels),
		outDir:            *outDir,
		port:              *port,
	}

	var srv *preview.Server
	if opt.port != 0 {
		srv = preview.Start(opt.port)
	}

	input := flag.Args()[0]
	if *watch {
		return watchAndProcess(input, opt, srv)
	}
	return processFile(input, opt, srv)
}

// processFile calibrates, reconstructs and writes a single cube, driving
// a live preview from StartRealignment if srv is non-nil.
func processFile(path string, opt options, srv *preview.Server) error {
	r, err := flim.OpenReader(path, flim.ReaderParams{
		Markers:           opt.markers,
		LineAveraging:     opt.lineAveraging,
		NY:                opt.ny,
		NX:                opt.nx,
		NZ:                opt.nz,
		FrameBinning:      opt.frameBinning,
		ChannelMask:       opt.channels,
		DownsamplingShift: opt.downsamplingShift,
		DataType:          opt.dataType,
	})
	if err != nil {
		return err
	}
	defer r.Close()

	calib, err := r.Calibrate()
	if err != nil {
		return err
	}
	log.Printf("%s: count_per_line=%.1f counts_interline=%.1f n_x=%d n_y=%d",
		path, calib.CountPerLine, calib.CountsInterline, calib.NX, calib.NLine)

	if srv != nil {
		r.OnIntensityFrame(func(frameIndex int, frame []float64, nz, ny, nx int) {
			srv.AddFrame(&preview.Frame{FrameIndex: frameIndex, NZ: nz, NY: ny, NX: nx, Data: frame})
		})
		if err := r.StartRealignment(opt.nativeTimeBins, opt.timeResolutionPs, opt.tRepPs); err != nil {
			return err
		}
	}

	c, err := r.BuildCube(opt.nativeTimeBins, opt.timeResolutionPs, opt.tRepPs, nil)
	if err != nil {
		return err
	}
	r.StopRealignment()

	base := filepath.Join(opt.outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	readerTags := []cubeio.Tag{
		cubeio.DoubleTag("SyncCountPerLine", calib.CountPerLine),
		cubeio.DoubleTag("SyncCountsInterline", calib.CountsInterline),
	}

	// Each z-plane gets its own file: the container format has no
	// second-cube block, so one CubeWriter can only ever hold one slice.
	for z := 0; z < c.NZ; z++ {
		outPath := base + ".flim.bin"
		if c.NZ > 1 {
			outPath = fmt.Sprintf("%s_z%d.flim.bin", base, z)
		}
		if err := writeCubeSlice(outPath, c, z, readerTags); err != nil {
			return err
		}
		log.Printf("wrote %s", outPath)
		fmt.Println(outPath)
	}
	return nil
}

func writeCubeSlice(outPath string, c *cube.Cube, z int, readerTags []cubeio.Tag) error {
	w, err := cubeio.NewCubeWriter(outPath)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Write(c, z, cubeio.WriteOptions{ReaderTags: readerTags})
}

// watchAndProcess processes every already-present matching file in dir,
// then waits for new ones via fsnotify until interrupted (re-homed from
// watching the executable itself to watching an acquisition directory).
func watchAndProcess(dir string, opt options, srv *preview.Server) error {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".pt3" {
			continue
		}
		if err := processFile(filepath.Join(dir, e.Name()), opt, srv); err != nil {
			log.Printf("%s: %s", e.Name(), err)
		}
	}

	events, err := watchDir(dir)
	if err != nil {
		return err
	}
	for !interrupt.IsSet() {
		select {
		case <-interrupt.Channel:
			return nil
		case path, ok := <-events:
			if !ok {
				return nil
			}
			// Give the acquisition software time to finish the write.
			time.Sleep(time.Second)
			if err := processFile(path, opt, srv); err != nil {
				log.Printf("%s: %s", path, err)
			}
		}
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nflimcube: %s.\n", err)
		os.Exit(1)
	}
}
