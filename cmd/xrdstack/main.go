// Copyright (C) 2020 Markus L. Noga
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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid"

	nl "github.com/mlnoga/xrdstack/internal"
	"github.com/mlnoga/xrdstack/internal/config"
	"github.com/mlnoga/xrdstack/internal/frame"
	"github.com/mlnoga/xrdstack/internal/imageset"
	"github.com/mlnoga/xrdstack/internal/ops"
	"github.com/mlnoga/xrdstack/internal/ops/trace"
	"github.com/mlnoga/xrdstack/internal/rest"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var configFile = flag.String("config", "", "load session settings from YAML `file`. Flags override file values")

var add      = flag.String("add", "", "comma-separated file names or patterns of the additive images, e.g. `scan*.tiff`")
var sub      = flag.String("sub", "", "comma-separated file names or patterns of the subtractive images, e.g. `dark*.tiff`")
var corr     = flag.String("corr", "", "divide compiled outputs by the correction image in `file`")
var cycles   = flag.Int   ("cycles", 1, "number of measurement cycles the image sequences are split into")

var addRot   = flag.Int   ("addRot", 0, "rotate additive images clockwise by n quarter turns")
var subRot   = flag.Int   ("subRot", 0, "rotate subtractive images clockwise by n quarter turns")
var corrRot  = flag.Int   ("corrRot", 0, "rotate the correction image clockwise by n quarter turns")

var dropFirst= flag.Int   ("dropFirst", 0, "reject the first n images of every cycle")
var dropLast = flag.Int   ("dropLast", 0, "reject the last n images of every cycle")
var stdMin   = flag.Float64("stdMin", 4, "reject images whose normalization is more than n standard deviations below the mean")
var stdMax   = flag.Float64("stdMax", 4, "reject images whose normalization is more than n standard deviations above the mean")
var crop     = flag.Float64("crop", 0.01, "fraction of width and height excluded per side when normalizing")
var threads  = flag.Int   ("threads", runtime.GOMAXPROCS(0), "maximum number of images processed concurrently")
var verbose  = flag.Bool  ("verbose", false, "log per-image details")

var outDir   = flag.String("outDir", ".", "write outputs into `directory`")
var name     = flag.String("name", "compiled", "base name of output files")
var ext      = flag.String("ext", ".tiff", "output format suffix, .tiff or .fits")
var jpg      = flag.String("jpg", "%auto",  "save 8bit preview of the total as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var cmap     = flag.String("cmap", "gray", "preview colormap, one of gray, heat or viridis")
var log      = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")

var seg      = flag.String("seg", "", "trace along the segment `x0,y0,x1,y1` in pixels")
var traceOf  = flag.String("traceOf", "total", "trace images of the additive, subtractive or total view")
var csvOut   = flag.String("csv", "%auto", "save traces as CSV to `file`. `%auto` replaces suffix of output file with .csv")

var addr     = flag.String("addr", ":8080", "serve the REST API on this address")
var chroot   = flag.String("chroot", "", "chroot to the given `directory` before serving")
var setuid   = flag.Int   ("setuid", -1, "switch to the given user id before serving, -1=no op")

func main() {
	logWriter:=nl.LogWriter()
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(os.Stdout, `xrdstack Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (stats|total|cycles|singles|trace|serve|config|init|legal|version)

Commands:
  stats   Show normalization values, acceptance and per-set statistics
  total   Compile all accepted images into one output
  cycles  Compile every measurement cycle into its own output
  singles Write every accepted image normalized and corrected on its own
  trace   Extract intensity profiles along a line segment as CSV
  serve   Serve the session over a REST API
  config  Save the effective settings as YAML to the given file, with patterns expanded
  init    Write the default settings as YAML to the given file
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

    args:=flag.Args()
    if len(args)<1 {
    	flag.Usage()
    	return
    }

	cfg, err:=loadConfig()
	if err!=nil { nl.LogFatalf("Error: %s\n", err.Error()) }
	op:=cfg.OpCompile()

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		*log=""
		if args[0]=="total" || args[0]=="cycles" || args[0]=="singles" || args[0]=="trace" {
			*log=autoName(op.FileName(""), ".log")
		}
	}
	if *log!="" { 
		if err:=os.MkdirAll(filepath.Dir(*log), 0755); err!=nil { nl.LogFatalf("Unable to create log directory: %s\n", err.Error()) }
		if err:=nl.LogAlsoToFile(*log); err!=nil { nl.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}
	*jpg=cfg.Output.JPG
	if *jpg=="%auto" { *jpg=autoName(op.FileName(""), ".jpg") }
	if *csvOut=="%auto" { *csvOut=autoName(op.FileName(""), ".csv") }

	// Enable CPU profiling if flagged
    if *cpuprofile != "" {
        f, err := os.Create(*cpuprofile)
        if err != nil {
            nl.LogFatalf("Could not create CPU profile: %s\n", err.Error())
        }
        defer f.Close()
        if err := pprof.StartCPUProfile(f); err != nil {
            nl.LogFatalf("Could not start CPU profile: %s\n", err.Error())
        }
        defer pprof.StopCPUProfile()
    }

	// run actions
    switch args[0] {
    case "stats":
    	var s *imageset.Session
    	if s, _, err=newSession(cfg, false, logWriter); err==nil {
    		s.WriteReport(logWriter)
    	}

    case "total", "cycles", "singles":
    	err=cmdCompile(args[0], cfg, logWriter)

    case "trace":
    	err=cmdTrace(cfg, logWriter)

    case "serve":
    	err=cmdServe(cfg, logWriter)

    case "config":
    	fileName:="xrdstack.yaml"
    	if len(args)>1 { fileName=args[1] }
    	err=cmdConfig(cfg, fileName, logWriter)

    case "init":
    	fileName:="xrdstack.yaml"
    	if len(args)>1 { fileName=args[1] }
    	if err=config.CreateDefaultConfigFile(fileName); err==nil {
    		fmt.Fprintf(logWriter, "Wrote default settings to %s\n", fileName)
    	}

    case "legal":
    	nl.LogPrintf("%s", legal)

    case "version":
    	fmt.Fprintf(logWriter, "Version %s\n", version)
    	logCPU(logWriter)

    case "help", "?":
    	flag.Usage()

    default:
    	fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
    	flag.Usage()
    	return 
    }

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
    if *memprofile != "" {
        f, err := os.Create(*memprofile)
        if err != nil {
            nl.LogFatalf("Could not create memory profile: %s\n", err.Error())
        }
        defer f.Close()
        runtime.GC() // get up-to-date statistics
        if err := pprof.Lookup("allocs").WriteTo(f,0); err != nil {
            nl.LogFatalf("Could not write allocation profile: %s\n", err.Error())
        }
    }

    if err!=nil {
		nl.LogFatalf("Error: %s\n", err.Error())
	}
    nl.LogClose()
}

// Replaces the suffix of the given file name
func autoName(fileName, suffix string) string {
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))+suffix
}

func splitPatterns(s string) (res []string) {
	for _, p:=range strings.Split(s, ",") {
		if p=strings.TrimSpace(p); p!="" { res=append(res, p) }
	}
	return res
}

// Loads the configuration file, if any, and overrides it with explicitly set flags
func loadConfig() (*config.Config, error) {
	cfg:=config.DefaultConfig()
	if *configFile!="" {
		var err error
		if cfg, err=config.LoadConfig(*configFile); err!=nil { return nil, err }
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "add":       cfg.Additive.Files=splitPatterns(*add)
		case "sub":       cfg.Subtractive.Files=splitPatterns(*sub)
		case "corr":      cfg.Correction.File=*corr
		case "cycles":    cfg.Cycles=*cycles
		case "addRot":    cfg.Additive.Rotation=*addRot
		case "subRot":    cfg.Subtractive.Rotation=*subRot
		case "corrRot":   cfg.Correction.Rotation=*corrRot
		case "dropFirst": cfg.Additive.DropFirst, cfg.Subtractive.DropFirst=*dropFirst, *dropFirst
		case "dropLast":  cfg.Additive.DropLast,  cfg.Subtractive.DropLast =*dropLast,  *dropLast
		case "stdMin":    cfg.Additive.StdMin,    cfg.Subtractive.StdMin   =*stdMin,    *stdMin
		case "stdMax":    cfg.Additive.StdMax,    cfg.Subtractive.StdMax   =*stdMax,    *stdMax
		case "crop":      cfg.Processing.CropFraction=*crop
		case "threads":   cfg.Processing.NumCores=*threads
		case "verbose":   cfg.Processing.Verbose=*verbose
		case "outDir":    cfg.Output.Dir=*outDir
		case "name":      cfg.Output.Name=*name
		case "ext":       cfg.Output.Ext=*ext
		case "jpg":       cfg.Output.JPG=*jpg
		case "cmap":      cfg.Output.Colormap=*cmap
		}
	})
	if err:=cfg.Validate(); err!=nil { return nil, err }
	return cfg, nil
}

// Creates the operator context and loads the session described by the configuration
// Saves the effective settings. If images are named, patterns are expanded into the files 
// of a loaded session
func cmdConfig(cfg *config.Config, fileName string, logWriter io.Writer) error {
	if len(cfg.Additive.Files)>0 || len(cfg.Subtractive.Files)>0 {
		s, _, err:=newSession(cfg, false, logWriter)
		if err!=nil { return err }
		cfg=config.FromSession(s, cfg)
	}
	if err:=config.SaveConfig(cfg, fileName); err!=nil { return err }
	fmt.Fprintf(logWriter, "Saved settings to %s\n", fileName)
	return nil
}

func newSession(cfg *config.Config, restrict bool, logWriter io.Writer) (*imageset.Session, *ops.Context, error) {
	c:=ops.NewContext(logWriter, frame.FileStore{})
	progress:=ops.NewLogProgress(logWriter)
	c.Progress=progress
	c.Notifier=ops.NewLogNotifier(logWriter)
	logCPU(logWriter)
	fmt.Fprintf(logWriter, "Using %d threads and %d MiB of memory\n", cfg.Processing.NumCores, c.MemoryMB)

	s, err:=cfg.NewSession(restrict, c)
	if err!=nil { return nil, nil, err }
	return s, c, nil
}

func logCPU(logWriter io.Writer) {
	fmt.Fprintf(logWriter, "Running on %s with %d physical and %d logical cores", 
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores)
	if cpuid.CPU.AVX2() { fmt.Fprintf(logWriter, ", AVX2") }
	fmt.Fprintf(logWriter, "\n")
}

func printOp(logWriter io.Writer, prefix string, op interface{}) error {
	m, err:=json.MarshalIndent(op, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s\n", prefix, string(m))
	return nil
}

// Compile commands
func cmdCompile(mode string, cfg *config.Config, logWriter io.Writer) error {
	s, c, err:=newSession(cfg, false, logWriter)
	if err!=nil { return err }
	if s.IsEmpty() { return fmt.Errorf("no images to compile, use -add and/or -sub") }

	op:=cfg.OpCompile()
	if err:=os.MkdirAll(op.OutDir, 0755); err!=nil { return err }
	if err:=printOp(logWriter, "\nCompiling with these settings:\n", op); err!=nil { return err }

	switch mode {
	case "cycles":
		_, err=op.PerCycle(s, c)
		return err
	case "singles":
		_, err=op.Total(s, true, c)
		return err
	}
	f, err:=op.Total(s, false, c)
	if err!=nil || f==nil || *jpg=="" { return err }
	opts:=frame.DefaultPreviewOptions()
	if opts.Colormap, err=frame.ParseColormap(cfg.Output.Colormap); err!=nil { return err }
	fmt.Fprintf(logWriter, "Writing %s pixel JPEG preview to %s\n", f.DimensionsToString(), *jpg)
	return f.WritePreviewJPGToFile(*jpg, opts)
}

func parseSegment(s string) (trace.Segment, error) {
	parts:=strings.Split(s, ",")
	if len(parts)!=4 { return trace.Segment{}, fmt.Errorf("segment '%s' needs four comma-separated coordinates", s) }
	var v [4]float64
	for i, p:=range parts {
		var err error
		if v[i], err=strconv.ParseFloat(strings.TrimSpace(p), 64); err!=nil {
			return trace.Segment{}, fmt.Errorf("segment '%s': %w", s, err)
		}
	}
	return trace.Segment{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}, nil
}

// Trace command
func cmdTrace(cfg *config.Config, logWriter io.Writer) error {
	segment, err:=parseSegment(*seg)
	if err!=nil { return err }
	kind, err:=imageset.ParseKind(*traceOf)
	if err!=nil { return err }
	s, c, err:=newSession(cfg, false, logWriter)
	if err!=nil { return err }

	op:=trace.NewOpTrace(segment)
	if err:=printOp(logWriter, "\nTracing with these settings:\n", op); err!=nil { return err }
	traces, pts, err:=op.Stack(s, kind, c)
	if err!=nil { return err }
	if traces==nil { return fmt.Errorf("no accepted %s images to trace", kind) }

	if err:=os.MkdirAll(filepath.Dir(*csvOut), 0755); err!=nil { return err }
	f, err:=os.Create(*csvOut)
	if err!=nil { return err }
	defer f.Close()
	fmt.Fprintf(logWriter, "Writing %d traces of %d points to %s\n", len(traces), len(pts), *csvOut)
	if err:=trace.WriteCSV(f, pts, traces); err!=nil { return err }
	return f.Close()
}

// Serve command. Paths in requests are restricted to the working directory tree
func cmdServe(cfg *config.Config, logWriter io.Writer) error {
	if err:=rest.MakeSandbox(*chroot, *setuid, logWriter); err!=nil { return err }
	s, _, err:=newSession(cfg, true, logWriter)
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "Serving on %s\n", *addr)
	return rest.NewServer(s, frame.FileStore{}, true, logWriter).Serve(*addr)
}
