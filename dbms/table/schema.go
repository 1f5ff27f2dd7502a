package table

import (
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// FieldSize is the fixed width of every field in a record.
const FieldSize = 40

// Field types.
const (
	TypeInt    = "int"
	TypeString = "string"
)

var (
	ErrInvalidSchema = errors.New("table: invalid schema")
	ErrNoSuchField   = errors.New("table: no such field")
	ErrInvalidValue  = errors.New("table: invalid value")
)

// Field is one column of a table.
type Field struct {
	Name string `bson:"name"`
	Type string `bson:"type"`
}

// Schema lists a table's fields in record order and the fields that must
// hold unique values. Every unique field is backed by a B+ tree index.
type Schema struct {
	Fields     []Field  `bson:"fields"`
	UniqueKeys []string `bson:"unique"`
}

// ParseSchema parses a field list such as "int id, string name" and a
// comma-separated list of unique fields such as "id".
func ParseSchema(fields, unique string) (*Schema, error) {
	s := &Schema{}
	for _, tok := range strings.Split(fields, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		parts := strings.Fields(tok)
		if len(parts) != 2 {
			return nil, errors.Wrapf(ErrInvalidSchema, "field %q: want \"<type> <name>\"", tok)
		}
		s.Fields = append(s.Fields, Field{Type: parts[0], Name: parts[1]})
	}
	for _, tok := range strings.Split(unique, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			s.UniqueKeys = append(s.UniqueKeys, tok)
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field types, names, and unique key references.
func (s *Schema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.Wrap(ErrInvalidSchema, "no fields")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Type != TypeInt && f.Type != TypeString {
			return errors.Wrapf(ErrInvalidSchema, "field %q: unknown type %q", f.Name, f.Type)
		}
		if f.Name == "" || strings.ContainsAny(f.Name, `/\=`) {
			return errors.Wrapf(ErrInvalidSchema, "invalid field name %q", f.Name)
		}
		if seen[f.Name] {
			return errors.Wrapf(ErrInvalidSchema, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
	}
	for i, k := range s.UniqueKeys {
		if !seen[k] {
			return errors.Wrapf(ErrInvalidSchema, "unique key %q is not a field", k)
		}
		if slices.Index(s.UniqueKeys, k) != i {
			return errors.Wrapf(ErrInvalidSchema, "unique key %q listed twice", k)
		}
	}
	return nil
}

// FieldIndex returns the position of the named field.
func (s *Schema) FieldIndex(name string) (int, error) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrNoSuchField, "%q", name)
}

// IsUnique reports whether the named field is a unique key.
func (s *Schema) IsUnique(name string) bool {
	return slices.Contains(s.UniqueKeys, name)
}

// RecordSize is the width in bytes of one record.
func (s *Schema) RecordSize() int {
	return FieldSize * len(s.Fields)
}

// CheckValues verifies a record's arity and that int fields parse.
func (s *Schema) CheckValues(values []string) error {
	if len(values) != len(s.Fields) {
		return errors.Wrapf(ErrInvalidValue, "got %d values for %d fields", len(values), len(s.Fields))
	}
	for i, f := range s.Fields {
		if f.Type != TypeInt {
			continue
		}
		if _, err := strconv.Atoi(values[i]); err != nil {
			return errors.Wrapf(ErrInvalidValue, "field %q: %q is not an int", f.Name, values[i])
		}
	}
	return nil
}

// String renders the schema in the form ParseSchema accepts.
func (s *Schema) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		parts[i] = f.Type + " " + f.Name
	}
	return strings.Join(parts, ", ")
}

func saveSchema(path string, s *Schema) error {
	data, err := bson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "table: encode schema")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "table: write %s", path)
	}
	return nil
}

func loadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "table: read %s", path)
	}
	s := &Schema{}
	if err := bson.Unmarshal(data, s); err != nil {
		return nil, errors.Wrapf(err, "table: decode %s", path)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
