// Command bmark loads the same string keys into the paged B+ tree and into
// Pebble, measures per-operation latency, and writes a CSV and a bar chart.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/btree-query-bench/strindex/dbms/index"
	"github.com/btree-query-bench/strindex/dbms/index/bptree"
	"github.com/btree-query-bench/strindex/dbms/index/lsm"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type config struct {
	n       int
	order   int
	cache   int
	seed    int64
	dir     string
	out     string
	dot     bool
	verbose bool
}

func main() {
	var cfg config
	flag.IntVar(&cfg.n, "n", 100000, "number of keys to load")
	flag.IntVar(&cfg.order, "order", 0, "B+ tree order (0 = largest that fits a page)")
	flag.IntVar(&cfg.cache, "cache", 0, "B+ tree page cache size in pages (0 = no cache)")
	flag.Int64Var(&cfg.seed, "seed", 1, "key permutation seed")
	flag.StringVar(&cfg.dir, "dir", "", "scratch directory (default: a temporary directory)")
	flag.StringVar(&cfg.out, "out", "results", "output directory for CSV, chart and DOT files")
	flag.BoolVar(&cfg.dot, "dot", false, "also write the B+ tree as Graphviz DOT")
	flag.BoolVar(&cfg.verbose, "v", false, "debug logging")
	flag.Parse()

	log := newLogger(cfg.verbose)
	code := execute(cfg, log)
	_ = log.Sync()
	os.Exit(code)
}

// execute runs the benchmark and returns the process exit code.
func execute(cfg config, log *zap.Logger) int {
	if err := run(cfg, log); err != nil {
		log.Error("benchmark failed", zap.Error(err))
		return 1
	}
	return 0
}

func newLogger(verbose bool) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func run(cfg config, log *zap.Logger) error {
	if cfg.n < 1 {
		return errors.Newf("-n must be positive, got %d", cfg.n)
	}
	if cfg.dir == "" {
		d, err := os.MkdirTemp("", "bmark-")
		if err != nil {
			return errors.Wrap(err, "scratch dir")
		}
		defer os.RemoveAll(d)
		cfg.dir = d
	}
	if err := os.MkdirAll(cfg.out, 0755); err != nil {
		return errors.Wrap(err, "output dir")
	}

	tree, err := bptree.Open(filepath.Join(cfg.dir, "bench.idx"), bptree.Options{
		Order:      cfg.order,
		CachePages: cfg.cache,
		Logger:     log.Named("bptree"),
	})
	if err != nil {
		return err
	}
	defer tree.Close()

	peb, err := lsm.Open(filepath.Join(cfg.dir, "pebble"))
	if err != nil {
		return err
	}
	defer peb.Close()

	var results []BenchResult
	conf := strconv.Itoa(tree.Order())
	for _, s := range []struct {
		name string
		idx  index.Index
	}{{"BPlusTree", tree}, {"Pebble", peb}} {
		rs, err := runSuite(s.name, conf, s.idx, cfg, log)
		if err != nil {
			return err
		}
		results = append(results, rs...)
	}

	rs, err := runOrdinal(tree, conf, cfg.n)
	if err != nil {
		return err
	}
	results = append(results, rs)

	stats, err := tree.Verify()
	if err != nil {
		return errors.Wrap(err, "verify")
	}
	log.Info("tree verified",
		zap.Int("depth", stats.Depth),
		zap.Int64("pages", stats.Pages),
		zap.Int("internal", stats.Internal),
		zap.Int("leaves", stats.Leaves),
		zap.Int("keys", stats.Keys))

	if err := writeCSV(filepath.Join(cfg.out, "results.csv"), results); err != nil {
		return err
	}
	if err := PlotLatency(filepath.Join(cfg.out, "latency.png"), results); err != nil {
		return err
	}
	if cfg.dot {
		if err := writeDOT(filepath.Join(cfg.out, "bptree.dot"), tree); err != nil {
			return err
		}
	}
	fmt.Printf("Benchmark complete. Results in %s\n", cfg.out)
	return nil
}

func runSuite(name, conf string, idx index.Index, cfg config, log *zap.Logger) ([]BenchResult, error) {
	log.Info("testing", zap.String("structure", name), zap.Int("keys", cfg.n))
	keys := NewKeys(cfg.seed, cfg.n)

	load, err := timed(name, conf, "Insert", cfg.n, func() error {
		for k := 0; k < cfg.n; k++ {
			if err := idx.Insert(keys.Fresh(), int64(k)*40); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := []BenchResult{load}

	ops := max(cfg.n/2, 1)
	for _, w := range []WorkloadType{Lookup, Miss, OLTP} {
		r, err := timed(name, conf, string(w), ops, func() error {
			bad, err := ExecuteWorkload(idx, keys, w, ops)
			if err != nil {
				return err
			}
			if bad > 0 {
				return errors.Newf("%d wrong answers", bad)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// runOrdinal measures ordinal lookups spread evenly over the first n keys.
func runOrdinal(tree *bptree.BPTree, conf string, n int) (BenchResult, error) {
	const ops = 100
	return timed("BPlusTree", conf, "Ordinal", ops, func() error {
		for i := 0; i < ops; i++ {
			pos := i * n / ops
			if _, ok, err := tree.FindRecordAtOrdinal(pos); err != nil {
				return err
			} else if !ok {
				return errors.Newf("ordinal %d not found", pos)
			}
		}
		return nil
	})
}

func writeDOT(path string, tree *bptree.BPTree) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "dot")
	}
	defer f.Close()
	return tree.ExportDOT(f)
}
