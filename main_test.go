package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/btree-query-bench/strindex/dbms/index/bptree"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestKeysAreDistinct(t *testing.T) {
	keys := NewKeys(1, 50)
	seen := map[string]bool{}
	for i := 0; i < 80; i++ { // past the permutation
		k := keys.Fresh()
		require.False(t, seen[k], "duplicate %s", k)
		seen[k] = true
	}
	for i := 0; i < 100; i++ {
		assert.True(t, seen[keys.Loaded()])
		assert.False(t, seen[keys.Absent()])
	}
}

func TestExecuteWorkload(t *testing.T) {
	tree, err := bptree.Open(filepath.Join(t.TempDir(), "w.idx"), bptree.Options{Order: 8})
	require.NoError(t, err)
	defer tree.Close()

	keys := NewKeys(2, 300)
	for i := 0; i < 300; i++ {
		require.NoError(t, tree.Insert(keys.Fresh(), int64(i)))
	}
	for _, w := range []WorkloadType{Lookup, Miss, OLTP} {
		bad, err := ExecuteWorkload(tree, keys, w, 200)
		require.NoError(t, err, w)
		assert.Zero(t, bad, w)
	}
	_, err = tree.Verify()
	require.NoError(t, err)
}

func TestRunWritesResults(t *testing.T) {
	out := filepath.Join(t.TempDir(), "results")
	cfg := config{n: 500, order: 6, cache: 4, seed: 3, dir: t.TempDir(), out: out, dot: true}
	require.NoError(t, run(cfg, zap.NewNop()))

	f, err := os.Open(filepath.Join(out, "results.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, csvHeader, rows[0])
	// 4 operations per structure plus the ordinal row.
	assert.Len(t, rows, 1+2*4+1)

	png, err := os.ReadFile(filepath.Join(out, "latency.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	dot, err := os.ReadFile(filepath.Join(out, "bptree.dot"))
	require.NoError(t, err)
	assert.Contains(t, string(dot), "digraph BPTree")
}

func TestTimedWrapsFailures(t *testing.T) {
	r, err := timed("BPlusTree", "4", "Insert", 10, func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 10, r.Ops)
	assert.Equal(t, []string{"BPlusTree", "4", "Insert", "10"}, r.row()[:4])

	_, err = timed("Pebble", "4", "Lookup (hit)", 10, func() error { return bptree.ErrDuplicateKey })
	assert.True(t, errors.Is(err, bptree.ErrDuplicateKey))
	assert.Contains(t, err.Error(), "Pebble: Lookup (hit)")
}

func TestExecuteLogsFailureAndReturnsCode(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	code := execute(config{n: 0, out: t.TempDir()}, zap.New(core))
	assert.Equal(t, 1, code)
	require.Equal(t, 1, logs.FilterMessage("benchmark failed").Len())
}

func TestPlotLatencyNeedsResults(t *testing.T) {
	assert.Error(t, PlotLatency(filepath.Join(t.TempDir(), "x.png"), nil))
}
