// Copyright (C) 2021 The pguresvt authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pguresvt/pguresvt/internal/cube"
	"github.com/pguresvt/pguresvt/internal/engine"
	"github.com/pguresvt/pguresvt/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out = flag.String("out", "denoised%04d.tif", "save output frames with given filename `pattern`")
var jpg = flag.String("jpg", "%auto", "save 8bit preview of the center output frame as JPEG to `file`. `%auto` derives the name from the output pattern")
var logFile = flag.String("log", "%auto", "save log output to `file` in addition to stdout. `%auto` derives the name from the output pattern")
var params = flag.String("params", "", "load denoising parameters from YAML `file`; explicit flags take precedence")

var patchSize = flag.Int64("patchsize", 4, "denoising patch size in pixels")
var patchOverlap = flag.Int64("patchoverlap", 1, "patch grid stride offset, must not exceed patchsize")
var length = flag.Int64("length", 15, "temporal window length in frames, must be odd")
var optimize = flag.Bool("optimize", true, "select the threshold by risk minimization; false requires -threshold")
var threshold = flag.Float64("threshold", 0.5, "fixed singular value threshold in [0,1], used when -optimize=false")
var alpha = flag.Float64("alpha", -1, "detector gain of the noise model, negative=estimate")
var mu = flag.Float64("mu", -1, "detector offset of the noise model, negative=estimate")
var sigma = flag.Float64("sigma", -1, "Gaussian noise level of the noise model, negative=estimate")
var arps = flag.Int64("arps", 7, "motion search neighborhood size in pixels, must be odd")
var tol = flag.Float64("tol", 1e-7, "convergence tolerance of the threshold search")
var median = flag.Int64("median", 5, "median filter size for the motion reference, must be odd")
var hotPixel = flag.Float64("hotpixel", 10, "hot pixel detection threshold in median absolute deviations")
var threads = flag.Int64("threads", 0, "number of worker threads, 0=all hardware threads")

var chroot = flag.String("chroot", "", "in server mode, change filesystem root to `directory` (requires root)")
var setuid = flag.Int64("setuid", -1, "in server mode, switch to this user id after opening the port")

// Derives a companion filename from the output pattern, resolving frame
// number verbs with frame zero
func deriveFromOut(suffix string) string {
	if *out == "" {
		return ""
	}
	name := strings.TrimSuffix(*out, filepath.Ext(*out)) + suffix
	if strings.Contains(name, "%") {
		name = fmt.Sprintf(name, 0)
	}
	return name
}

func main() {
	var logWriter io.Writer = os.Stdout
	start := time.Now()
	flag.Usage = func() {
		fmt.Fprintf(logWriter, `PGURE-SVT Copyright (c) 2021 The pguresvt authors
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (denoise|serve|legal|version) (img0.tif ... imgn.tif)

Commands:
  denoise Denoise the input image sequence
  serve   Offer the denoiser as a web service
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Log to file in addition to stdout, if selected
	if *logFile == "%auto" {
		*logFile = deriveFromOut(".log")
	}
	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			fmt.Fprintf(logWriter, "Unable to open logfile '%s'\n", *logFile)
			os.Exit(-1)
		}
		defer f.Close()
		logWriter = io.MultiWriter(os.Stdout, f)
	}

	// Enable CPU profiling if flagged
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(logWriter, "Could not create CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(logWriter, "Could not start CPU profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer pprof.StopCPUProfile()
	}

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		return
	}

	var err error
	switch args[0] {
	case "serve":
		rest.MakeSandbox(*chroot, int(*setuid))
		rest.Serve()

	case "denoise":
		err = cmdDenoise(args[1:], logWriter)

	case "legal":
		cmdLegal(logWriter)

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)

	case "help", "?":
		flag.Usage()

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(logWriter, "Could not create memory profile: %s\n", err.Error())
			os.Exit(-1)
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.Lookup("allocs").WriteTo(f, 0); err != nil {
			fmt.Fprintf(logWriter, "Could not write allocation profile: %s\n", err.Error())
			os.Exit(-1)
		}
	}

	if err != nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Builds the configuration from the optional YAML parameter file and the
// command line, explicitly set flags winning over file values
func buildConfig() (*engine.Config, error) {
	cfg := engine.NewConfig()
	if *params != "" {
		data, err := ioutil.ReadFile(*params)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %s", *params, err.Error())
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "patchsize":
			cfg.PatchSize = int32(*patchSize)
		case "patchoverlap":
			cfg.PatchOverlap = int32(*patchOverlap)
		case "length":
			cfg.Length = int32(*length)
		case "optimize":
			cfg.Optimize = *optimize
		case "threshold":
			cfg.Threshold = float32(*threshold)
		case "alpha":
			cfg.Alpha = float32(*alpha)
		case "mu":
			cfg.Mu = float32(*mu)
		case "sigma":
			cfg.Sigma = float32(*sigma)
		case "arps":
			cfg.ArpsSize = int32(*arps)
		case "tol":
			cfg.Tol = *tol
		case "median":
			cfg.Median = int32(*median)
		case "hotpixel":
			cfg.HotPixel = float32(*hotPixel)
		case "threads":
			cfg.NumThreads = int(*threads)
		}
	})
	return cfg, nil
}

func cmdDenoise(patterns []string, logWriter io.Writer) error {
	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	fileNames, err := cube.GlobSequence(patterns)
	if err != nil {
		return fmt.Errorf("globbing filenames: %s", err.Error())
	}
	in, err := cube.LoadSequenceTIFF(fileNames, logWriter)
	if err != nil {
		return err
	}

	result, err := engine.Denoise(in, cfg, logWriter)
	if err != nil {
		return err
	}

	outMin, outMax := result.MinMax()
	if err := result.WriteSequenceTIFF16(*out, outMin, outMax, 1.0, logWriter); err != nil {
		return err
	}

	if *jpg == "%auto" {
		*jpg = deriveFromOut(".jpg")
	}
	if *jpg != "" {
		if err := result.WritePreviewJPGToFile(*jpg, result.Nt/2, outMin, outMax, 1.0, 95); err != nil {
			return err
		}
		fmt.Fprintf(logWriter, "Saved preview to %s\n", *jpg)
	}
	return nil
}

func cmdLegal(logWriter io.Writer) {
	fmt.Fprintf(logWriter, `PGURE-SVT is Copyright (c) 2021 The pguresvt authors, licensed under GPL v3.

This program uses the following open source libraries:

A1. https://github.com/gonum/gonum is Copyright (c) 2013 The Gonum Authors,
licensed under the 3-clause BSD license.

A2. https://github.com/pbnjay/memory is Copyright (c) 2017 Jeremy Jay,
licensed under the 3-clause BSD license.

A3. https://github.com/valyala/fastrand is Copyright (c) 2017 Aliaksandr Valialkin,
licensed under the MIT license.

A4. https://github.com/klauspost/cpuid is Copyright (c) 2015 Klaus Post,
licensed under the MIT license.

A5. https://github.com/gin-gonic/gin is Copyright (c) 2014 Manuel Martinez-Almeida,
licensed under the MIT license.

A6. https://github.com/lucasb-eyer/go-colorful is Copyright (c) 2013 Lucas Beyer,
licensed under the MIT license.

A7. https://golang.org/x/image is Copyright (c) 2009 The Go Authors,
licensed under the 3-clause BSD license.

A8. https://gopkg.in/yaml.v3 is Copyright (c) 2011-2019 Canonical Ltd,
licensed under the Apache 2.0 and MIT licenses.
`)
}
