// Package report defines the tabular model written to the inventory workbook.
package report

import (
	"fmt"
	"time"
)

// Placeholder columns and messages.
const (
	MessageColumn = "Message"
	ServiceColumn = "Service"
	ErrorColumn   = "Error"
	CodeColumn    = "Code"

	NoResourcesMessage = "No resources found"
	NotApplicable      = "N/A"
)

// Cell is one column/value pair used to build a Row.
type Cell struct {
	Column string
	Value  Value
}

// Col builds a Cell.
func Col(column string, v Value) Cell {
	return Cell{Column: column, Value: v}
}

// Row maps column names to values and remembers insertion order.
type Row struct {
	columns []string
	values  map[string]Value
}

// NewRow builds a row from cells. A repeated column keeps its first
// position and its last value.
func NewRow(cells ...Cell) Row {
	r := Row{
		columns: make([]string, 0, len(cells)),
		values:  make(map[string]Value, len(cells)),
	}
	for _, c := range cells {
		if _, ok := r.values[c.Column]; !ok {
			r.columns = append(r.columns, c.Column)
		}
		r.values[c.Column] = c.Value
	}
	return r
}

// Columns returns the row's columns in insertion order.
func (r Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Get returns the value for column, or Absent if the row lacks it.
func (r Row) Get(column string) Value {
	return r.values[column]
}

// Has reports whether the row defines column.
func (r Row) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Len returns the number of columns.
func (r Row) Len() int {
	return len(r.columns)
}

// NoResourcesRow is the placeholder for a category that returned nothing.
func NoResourcesRow() Row {
	return NewRow(Col(MessageColumn, String(NoResourcesMessage)))
}

// UnimplementedRow is the placeholder for a category without an extractor.
func UnimplementedRow(category string) Row {
	return NewRow(Col(ServiceColumn, String(fmt.Sprintf("No custom logic implemented for %s", category))))
}

// ErrorRow carries a collection failure. code is omitted when empty.
func ErrorRow(err error, code string) Row {
	cells := []Cell{Col(ErrorColumn, String(err.Error()))}
	if code != "" {
		cells = append(cells, Col(CodeColumn, String(code)))
	}
	return NewRow(cells...)
}

// Status summarizes how a category was collected.
type Status string

// Collection statuses.
const (
	StatusOK            Status = "ok"
	StatusEmpty         Status = "empty"
	StatusError         Status = "error"
	StatusUnimplemented Status = "unimplemented"
)

// Table is the rows collected for one category, or for one group within a
// category that spans several sheets (a Route53 hosted zone).
type Table struct {
	Category string        // Category or group name, source of the sheet name
	Group    string        // Owning category when the table is one of several
	Rows     []Row         // One per resource, or a single placeholder
	Status   Status        // Collection outcome
	Duration time.Duration // Time spent collecting the owning category
}

// Source returns the category that produced the table.
func (t Table) Source() string {
	if t.Group != "" {
		return t.Group
	}
	return t.Category
}

// Label names the table for people: the category, or "GROUP name" for a
// table within a multi-sheet category.
func (t Table) Label() string {
	if t.Group != "" {
		return t.Group + " " + t.Category
	}
	return t.Category
}

// Columns returns the union of row columns in first-seen order.
func (t Table) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range t.Rows {
		for _, c := range r.columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}

// Resources returns the number of rows that describe real resources.
func (t Table) Resources() int {
	if t.Status != StatusOK {
		return 0
	}
	return len(t.Rows)
}

// Report is the full inventory of one run.
type Report struct {
	Account     string
	Region      string
	GeneratedAt time.Time
	Tables      []Table
}

// Group returns the tables a multi-sheet category produced, in order.
func (r Report) Group(category string) []Table {
	var tables []Table
	for _, t := range r.Tables {
		if t.Source() == category {
			tables = append(tables, t)
		}
	}
	return tables
}

// Table returns the table for category, if present.
func (r Report) Table(category string) (Table, bool) {
	for _, t := range r.Tables {
		if t.Category == category {
			return t, true
		}
	}
	return Table{}, false
}
