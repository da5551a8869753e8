// MIT License
//
// Copyright (c) 2023 EASE lab
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// dumpviz renders the virtual address space captured in a Windows kernel
// crash dump as an image: it walks the 4-level page tables out of the
// dump's physical memory, classifies every present mapping by protection,
// and lays the result out along a Hilbert curve, one pixel per 4KiB.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vhive-serverless/dumpviz/kdump"
	"github.com/vhive-serverless/dumpviz/metrics"
	"github.com/vhive-serverless/dumpviz/ptables"
	"github.com/vhive-serverless/dumpviz/render"
	"github.com/vhive-serverless/dumpviz/tape"
)

func main() {
	debug := flag.Bool("dbg", false, "Enable debug logging")
	dtbOverride := flag.String("dtb", "", "Hex override of the directory table base (default: the CR3 captured in the dump)")
	outFile := flag.String("o", "vis.ppm", "Output image path")
	csvFile := flag.String("csv", "", "Append summary stats to this csv file")
	charts := flag.Bool("charts", false, "Emit summary charts next to the output image")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <dump-file>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := run(flag.Arg(0), *dtbOverride, *outFile, *csvFile, *charts); err != nil {
		log.Errorf("Failed to visualize the dump: %v", err)
		os.Exit(1)
	}
}

func run(dumpPath, dtbOverride, outFile, csvFile string, charts bool) error {
	parser, err := kdump.Parse(dumpPath)
	if err != nil {
		return err
	}
	defer parser.Close()

	if !parser.IsFullDump() {
		log.Warnf("%s is not a full dump (%s) so some pages might be missing", filepath.Base(dumpPath), parser.DumpType())
	}

	dtb := parser.GetDirectoryTableBase()
	if dtbOverride != "" {
		if dtb, err = strconv.ParseUint(strings.TrimPrefix(dtbOverride, "0x"), 16, 64); err != nil {
			return fmt.Errorf("invalid -dtb value %q: %v", dtbOverride, err)
		}
	}

	log.Debugf("Walking the paging hierarchy rooted at %#x, %d resident pages", dtb, parser.ResidentPages())

	walker, err := ptables.NewWalker(parser, dtb)
	if err != nil {
		return err
	}

	builder := tape.NewBuilder()
	for {
		chain, ok := walker.Next()
		if !ok {
			break
		}

		builder.Append(chain)
	}

	if n := walker.SkippedTables(); n > 0 {
		log.Warnf("%d intermediate tables were not resident; the image is a lossy view of the address space", n)
	}

	t := builder.Finish()
	if err := render.WritePPMFile(outFile, t); err != nil {
		return err
	}
	log.Infof("Wrote %s", outFile)

	summary := metrics.Compute(t)
	summary.Log()

	if csvFile != "" {
		if err := summary.WriteCSV(csvFile, filepath.Base(dumpPath)); err != nil {
			return err
		}
	}

	if charts {
		base := strings.TrimSuffix(outFile, filepath.Ext(outFile))
		if err := summary.PlotClassBars(base + "_classes.png"); err != nil {
			return err
		}
		if err := metrics.PlotMappedDensity(t, base+"_density.png"); err != nil {
			return err
		}
	}

	return nil
}
