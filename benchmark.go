package main

import (
	"encoding/csv"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// BenchResult is one row of results.csv.
type BenchResult struct {
	Structure string
	Config    string
	Operation string
	Ops       int
	LatencyNs int64 // mean per operation
	Heap      HeapStats
}

// HeapStats is the live heap after a forced GC.
type HeapStats struct {
	LiveMB  uint64
	Objects uint64
}

func liveHeap() HeapStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return HeapStats{LiveMB: m.Alloc / 1024 / 1024, Objects: m.HeapObjects}
}

// timed runs fn, which performs ops operations, and reports the mean
// latency. The heap is sampled after the clock stops.
func timed(structure, config, operation string, ops int, fn func() error) (BenchResult, error) {
	if ops < 1 {
		ops = 1
	}
	start := time.Now()
	if err := fn(); err != nil {
		return BenchResult{}, errors.Wrapf(err, "%s: %s", structure, operation)
	}
	elapsed := time.Since(start)
	return BenchResult{
		Structure: structure,
		Config:    config,
		Operation: operation,
		Ops:       ops,
		LatencyNs: elapsed.Nanoseconds() / int64(ops),
		Heap:      liveHeap(),
	}, nil
}

var csvHeader = []string{"Structure", "Config", "Operation", "Ops", "LatencyNs", "LiveMB", "HeapObjects"}

func (r BenchResult) row() []string {
	return []string{
		r.Structure,
		r.Config,
		r.Operation,
		strconv.Itoa(r.Ops),
		strconv.FormatInt(r.LatencyNs, 10),
		strconv.FormatUint(r.Heap.LiveMB, 10),
		strconv.FormatUint(r.Heap.Objects, 10),
	}
}

func writeCSV(path string, results []BenchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return errors.Wrap(err, "csv")
	}
	for _, r := range results {
		if err := w.Write(r.row()); err != nil {
			return errors.Wrap(err, "csv")
		}
	}
	w.Flush()
	return errors.Wrap(w.Error(), "csv")
}
