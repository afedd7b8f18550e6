// Package collector runs the category extractors and assembles the report.
package collector

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/tally/pkg/report"
)

// ExtractFunc lists one category and returns one row per resource.
// It must follow pagination to the end before returning.
type ExtractFunc func(ctx context.Context) ([]report.Row, error)

// TablesFunc lists a category that spans several sheets and returns one
// table per group, each named by its Category field.
type TablesFunc func(ctx context.Context) ([]report.Table, error)

// Category binds a category name to its extractor. Exactly one of Extract
// and Tables is set.
type Category struct {
	Name    string
	Extract ExtractFunc
	Tables  TablesFunc
}

// tables runs whichever extractor the category carries.
func (c Category) tables(ctx context.Context) ([]report.Table, error) {
	if c.Tables != nil {
		return c.Tables(ctx)
	}
	rows, err := c.Extract(ctx)
	if err != nil {
		return nil, err
	}
	return []report.Table{{Category: c.Name, Rows: rows}}, nil
}

// Registry holds categories in registration order.
// Lookups ignore case so "ec2" finds "EC2".
type Registry struct {
	order  []string
	byName map[string]Category
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Category)}
}

// Register adds a category. Names must be unique, ignoring case.
func (r *Registry) Register(c Category) error {
	if c.Name == "" {
		return fmt.Errorf("register category: empty name")
	}
	if (c.Extract == nil) == (c.Tables == nil) {
		return fmt.Errorf("register category %q: need exactly one extractor", c.Name)
	}
	key := registryKey(c.Name)
	if _, exists := r.byName[key]; exists {
		return fmt.Errorf("register category %q: already registered", c.Name)
	}
	r.byName[key] = c
	r.order = append(r.order, c.Name)
	return nil
}

// Get returns the category registered under name.
func (r *Registry) Get(name string) (Category, bool) {
	c, ok := r.byName[registryKey(name)]
	return c, ok
}

// Names returns category names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns categories in registration order.
func (r *Registry) All() []Category {
	all := make([]Category, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.byName[registryKey(name)])
	}
	return all
}

// Len returns the number of registered categories.
func (r *Registry) Len() int {
	return len(r.order)
}

func registryKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
