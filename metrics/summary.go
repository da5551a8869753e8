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

// Package metrics summarizes a finished walk: how much of the address space
// is mapped, with which protections, and how contiguous the mappings are.
package metrics

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	mstats "github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/vhive-serverless/dumpviz/ptables"
	"github.com/vhive-serverless/dumpviz/tape"
)

// Summary Aggregate statistics over one tape
type Summary struct {
	// ClassCells Number of cells per access class, indexed by AccessClass
	ClassCells [ptables.NumAccessClasses]uint64

	MappedCells   uint64
	UnmappedCells uint64
	TotalCells    uint64
	FirstVa       uint64
	TruncatedGaps uint64

	// regionSizes Lengths, in cells, of the maximal runs of consecutive
	// mapped cells
	regionSizes []float64

	RegionCount  int
	RegionMean   float64
	RegionStdDev float64
	RegionMedian float64
	RegionP95    float64
}

// Compute Builds the summary of a tape
func Compute(t *tape.Tape) *Summary {
	s := &Summary{
		TotalCells:    uint64(len(t.Cells)),
		FirstVa:       t.FirstVa,
		TruncatedGaps: t.TruncatedGaps,
	}

	var run float64
	for _, cell := range t.Cells {
		class, ok := cell.Class()
		if !ok {
			s.UnmappedCells++
			if run > 0 {
				s.regionSizes = append(s.regionSizes, run)
				run = 0
			}
			continue
		}

		s.MappedCells++
		s.ClassCells[class]++
		run++
	}

	if run > 0 {
		s.regionSizes = append(s.regionSizes, run)
	}

	s.RegionCount = len(s.regionSizes)
	if s.RegionCount > 0 {
		s.RegionMean, s.RegionStdDev = stat.MeanStdDev(s.regionSizes, nil)

		var err error
		if s.RegionMedian, err = mstats.Median(s.regionSizes); err != nil {
			log.Errorf("Failed to compute the median region size: %v", err)
		}
		if s.RegionP95, err = mstats.Percentile(s.regionSizes, 95); err != nil {
			log.Errorf("Failed to compute the p95 region size: %v", err)
		}
	}

	return s
}

// Log Prints the summary at info level
func (s *Summary) Log() {
	log.Infof("Mapped %d cells (%d unmapped filler, %d truncated gaps), first VA %#x",
		s.MappedCells, s.UnmappedCells, s.TruncatedGaps, s.FirstVa)

	for class := ptables.AccessClass(0); class < ptables.NumAccessClasses; class++ {
		if s.ClassCells[class] == 0 {
			continue
		}
		log.Infof("  %-20s %d cells", class, s.ClassCells[class])
	}

	if s.RegionCount > 0 {
		log.Infof("  %d mapped regions, %.1f +- %.1f cells (median %.0f, p95 %.0f)",
			s.RegionCount, s.RegionMean, s.RegionStdDev, s.RegionMedian, s.RegionP95)
	}
}

// WriteCSV Appends one row of summary stats to the csv file at path,
// prepending the header when the file is empty
func (s *Summary) WriteCSV(path, dumpName string) error {
	var statHeader = []string{
		"Dump",
		"TotalCells",
		"MappedCells",
		"UnmappedCells",
		"TruncatedGaps",
		"Regions",
		"RegionMean",
		"RegionStdDev",
	}

	for class := ptables.AccessClass(0); class < ptables.NumAccessClasses; class++ {
		statHeader = append(statHeader, class.String())
	}

	row := []string{
		dumpName,
		strconv.FormatUint(s.TotalCells, 10),
		strconv.FormatUint(s.MappedCells, 10),
		strconv.FormatUint(s.UnmappedCells, 10),
		strconv.FormatUint(s.TruncatedGaps, 10),
		strconv.Itoa(s.RegionCount),
		fmt.Sprintf("%.1f", s.RegionMean),
		fmt.Sprintf("%.1f", s.RegionStdDev),
	}

	for class := ptables.AccessClass(0); class < ptables.NumAccessClasses; class++ {
		row = append(row, strconv.FormatUint(s.ClassCells[class], 10))
	}

	csvFile, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Error("Failed to create csv file for writing stats")
		return err
	}
	defer csvFile.Close()

	writer := csv.NewWriter(csvFile)
	defer writer.Flush()

	fileInfo, err := csvFile.Stat()
	if err != nil {
		log.Error("Failed to stat csv file")
		return err
	}

	if fileInfo.Size() == 0 {
		if err := writer.Write(statHeader); err != nil {
			log.Error("Failed to write header to csv file")
			return err
		}
	}

	if err := writer.Write(row); err != nil {
		log.Error("Failed to write to csv file")
		return err
	}

	return nil
}
