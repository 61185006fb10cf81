// Package report projects domain entities into flat rows for tabular export.
// Each report is a declarative table of (field, extractor) pairs; callers pick
// a subset of fields and get back a header row plus one row per entity, with
// columns in the table's declared order.
package report

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrUnknownField = errors.New("unknown report field")
	ErrBadName      = errors.New("report name may only contain letters, digits, spaces, hyphens and underscores")
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// ValidateName checks the user-supplied report name against the safe-filename
// constraint before any generation work happens.
func ValidateName(name string) error {
	if name == "" || !nameRe.MatchString(name) {
		return ErrBadName
	}
	return nil
}

// Join flattens a multi-valued field into one display string. A single value
// renders bare; an empty list renders as the empty string.
func Join(values []string) string {
	return strings.Join(values, " & ")
}

// Field is one exportable column.
type Field[T any] struct {
	Name    string
	Label   string
	Extract func(T) string
}

// Table is an ordered list of exportable columns.
type Table[T any] struct {
	fields []Field[T]
}

func NewTable[T any](fields ...Field[T]) Table[T] {
	return Table[T]{fields: fields}
}

// FieldNames lists every selectable field in declaration order.
func (t Table[T]) FieldNames() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.Name
	}
	return names
}

// Build produces the header row followed by one row per item. selected is the
// set of enabled field names; column order always follows the table, not the
// selection. A name outside the table fails the whole build.
func (t Table[T]) Build(selected []string, items []T) ([][]string, error) {
	enabled := make(map[string]bool, len(selected))
	for _, name := range selected {
		known := false
		for _, f := range t.fields {
			if f.Name == name {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		enabled[name] = true
	}

	var cols []Field[T]
	for _, f := range t.fields {
		if enabled[f.Name] {
			cols = append(cols, f)
		}
	}

	rows := make([][]string, 0, len(items)+1)
	header := make([]string, len(cols))
	for i, f := range cols {
		header[i] = f.Label
	}
	rows = append(rows, header)

	for _, item := range items {
		row := make([]string, len(cols))
		for i, f := range cols {
			row[i] = f.Extract(item)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
