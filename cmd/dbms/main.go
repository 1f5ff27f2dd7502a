// Command dbms is an interactive menu over the flat-file tables and their
// B+ tree indexes.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/btree-query-bench/strindex/dbms/table"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := flag.String("root", "Tables", "directory holding the tables")
	cache := flag.Int("cache", 0, "page cache size per index (0 = no cache)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if *verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := zc.Build()
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync() //nolint:errcheck

	s := &session{
		opts: table.Options{Root: *root, CachePages: *cache, Logger: log},
		in:   bufio.NewScanner(os.Stdin),
		out:  os.Stdout,
	}
	s.mainMenu()
}

type session struct {
	opts table.Options
	in   *bufio.Scanner
	out  io.Writer
}

func (s *session) prompt(msg string) (string, bool) {
	fmt.Fprint(s.out, msg)
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *session) mainMenu() {
	for {
		fmt.Fprintln(s.out, "\n--- Simple DBMS CLI ---")
		fmt.Fprintln(s.out, "1. Create Table")
		fmt.Fprintln(s.out, "2. Use Table")
		fmt.Fprintln(s.out, "3. Delete Table")
		fmt.Fprintln(s.out, "4. List Tables")
		fmt.Fprintln(s.out, "5. Exit")
		choice, ok := s.prompt("Enter choice: ")
		if !ok {
			return
		}
		switch choice {
		case "1":
			s.createTable()
		case "2":
			s.useTable()
		case "3":
			s.deleteTable()
		case "4":
			s.listTables()
		case "5":
			return
		default:
			fmt.Fprintln(s.out, "Invalid choice!")
		}
	}
}

func (s *session) createTable() {
	name, ok := s.prompt("Enter table name: ")
	if !ok {
		return
	}
	fields, ok := s.prompt("Enter schema (e.g., int id, string name, int age):\n> ")
	if !ok {
		return
	}
	unique, ok := s.prompt("Enter unique keys (comma separated):\n> ")
	if !ok {
		return
	}
	schema, err := table.ParseSchema(fields, unique)
	if err != nil {
		s.report(err)
		return
	}
	t, err := table.Create(s.opts, name, schema)
	if err != nil {
		s.report(err)
		return
	}
	_ = t.Close()
	fmt.Fprintln(s.out, "Table created successfully.")
}

func (s *session) deleteTable() {
	name, ok := s.prompt("Enter table name to delete: ")
	if !ok {
		return
	}
	if err := table.Drop(s.opts, name); err != nil {
		s.report(err)
		return
	}
	fmt.Fprintln(s.out, "Table deleted.")
}

func (s *session) listTables() {
	names, err := table.List(s.opts)
	if err != nil {
		s.report(err)
		return
	}
	if len(names) == 0 {
		fmt.Fprintln(s.out, "No tables.")
	}
	for _, n := range names {
		fmt.Fprintln(s.out, n)
	}
}

func (s *session) useTable() {
	name, ok := s.prompt("Enter table name to use: ")
	if !ok {
		return
	}
	t, err := table.Open(s.opts, name)
	if err != nil {
		s.report(err)
		return
	}
	defer t.Close()

	for {
		fmt.Fprintf(s.out, "\nUsing table: %s (%s)\n", t.Name(), t.Schema())
		fmt.Fprintln(s.out, "1. Add Record")
		fmt.Fprintln(s.out, "2. Find Record")
		fmt.Fprintln(s.out, "3. Record by Position")
		fmt.Fprintln(s.out, "4. Exit")
		choice, ok := s.prompt("Enter choice: ")
		if !ok {
			return
		}
		switch choice {
		case "1":
			s.addRecord(t)
		case "2":
			s.findRecord(t)
		case "3":
			s.recordAt(t)
		default:
			return
		}
	}
}

func (s *session) addRecord(t *table.Table) {
	fields := t.Schema().Fields
	values := make([]string, len(fields))
	for i, f := range fields {
		v, ok := s.prompt(fmt.Sprintf("Enter %s (%s): ", f.Name, f.Type))
		if !ok {
			return
		}
		values[i] = v
	}
	if _, err := t.AddRecord(values); err != nil {
		s.report(err)
		return
	}
	fmt.Fprintln(s.out, "Record added successfully.")
}

func (s *session) findRecord(t *table.Table) {
	q, ok := s.prompt("Enter query (field=value): ")
	if !ok {
		return
	}
	field, value, found := strings.Cut(q, "=")
	if !found {
		fmt.Fprintln(s.out, "Invalid format")
		return
	}
	field, value = strings.TrimSpace(field), strings.TrimSpace(value)
	if _, err := t.Schema().FieldIndex(field); err != nil {
		fmt.Fprintln(s.out, "Field not in schema")
		return
	}
	if !t.Schema().IsUnique(field) {
		fmt.Fprintln(s.out, "Scanning all records...")
	}
	recs, err := t.Find(field, value)
	if err != nil {
		s.report(err)
		return
	}
	if len(recs) == 0 {
		fmt.Fprintln(s.out, "Not found")
		return
	}
	for _, r := range recs {
		s.printRecord(t, r)
	}
}

func (s *session) recordAt(t *table.Table) {
	field, ok := s.prompt("Enter unique field: ")
	if !ok {
		return
	}
	pos, ok := s.prompt("Enter position (0-based): ")
	if !ok {
		return
	}
	n, err := strconv.Atoi(pos)
	if err != nil {
		fmt.Fprintln(s.out, "Invalid position")
		return
	}
	rec, found, err := t.RecordAt(field, n)
	if err != nil {
		s.report(err)
		return
	}
	if !found {
		fmt.Fprintln(s.out, "Not found")
		return
	}
	s.printRecord(t, rec)
}

func (s *session) printRecord(t *table.Table, rec []string) {
	for i, f := range t.Schema().Fields {
		fmt.Fprintf(s.out, "%s: %s  ", f.Name, rec[i])
	}
	fmt.Fprintln(s.out)
}

func (s *session) report(err error) {
	switch {
	case errors.Is(err, table.ErrDuplicateKey):
		fmt.Fprintf(s.out, "Duplicate key. Record not added. (%v)\n", err)
	case errors.Is(err, table.ErrTableExists):
		fmt.Fprintln(s.out, "Table already exists.")
	case errors.Is(err, table.ErrNoSuchTable):
		fmt.Fprintln(s.out, "Table not found.")
	default:
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
}
