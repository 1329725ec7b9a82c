// Package model describes the resource schema consulted by the query
// compilers: resource types, their columns, primary keys and relationships.
//
// The schema is explicit. A Registry is built once at startup, from Go
// values or from a YAML or CUE schema file, and is read-only afterwards,
// so it is safe to share across concurrent requests.
package model

import (
	"fmt"
	"slices"
)

// Relationship describes a named association from one resource type to another.
//
// The join condition is always Target.ForeignKey = Parent.LocalKey:
//   - to-one (articles.author): LocalKey "author_id" on articles, ForeignKey "id" on users
//   - to-many (users.articles): LocalKey "id" on users, ForeignKey "author_id" on articles
type Relationship struct {
	Name       string `yaml:"name" json:"name"`
	Target     string `yaml:"target" json:"target"`
	ToMany     bool   `yaml:"to_many,omitempty" json:"to_many,omitempty"`
	LocalKey   string `yaml:"local_key" json:"local_key"`
	ForeignKey string `yaml:"foreign_key" json:"foreign_key"`
}

// Resource describes one resource type backed by a table.
type Resource struct {
	Type          string         `yaml:"type" json:"type"`
	Table         string         `yaml:"table,omitempty" json:"table,omitempty"`
	PrimaryKey    string         `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Columns       []string       `yaml:"columns" json:"columns"`
	Relationships []Relationship `yaml:"relationships,omitempty" json:"relationships,omitempty"`

	// Actions lists the enabled actions; empty enables all of them.
	Actions []string `yaml:"actions,omitempty" json:"actions,omitempty"`
}

// HasColumn reports whether name is a column of the resource.
func (r *Resource) HasColumn(name string) bool {
	return slices.Contains(r.Columns, name)
}

// Relationship returns the relationship by name.
func (r *Resource) Relationship(name string) (Relationship, bool) {
	for _, rel := range r.Relationships {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relationship{}, false
}

// Allows reports whether the action is enabled for the resource.
func (r *Resource) Allows(action string) bool {
	return len(r.Actions) == 0 || slices.Contains(r.Actions, action)
}

// Provider exposes schema metadata for the query compilers.
// Lookups for unknown types return zero values, never errors.
type Provider interface {
	Resource(typ string) (*Resource, bool)
	Columns(typ string) []string
	PrimaryKey(typ string) string
	Relationships(typ string) []Relationship
	Relationship(typ, name string) (Relationship, bool)
}

// Registry is the static Provider implementation.
type Registry struct {
	resources map[string]*Resource
	order     []string
}

var _ Provider = (*Registry)(nil)

// NewRegistry validates the resources and builds a Registry.
// Table defaults to the type name and PrimaryKey defaults to "id".
func NewRegistry(resources ...Resource) (*Registry, error) {
	reg := &Registry{resources: make(map[string]*Resource, len(resources))}

	for i := range resources {
		res := resources[i]
		if res.Type == "" {
			return nil, fmt.Errorf("resource[%d]: type is required", i)
		}
		if _, dup := reg.resources[res.Type]; dup {
			return nil, fmt.Errorf("resource %s: duplicate type", res.Type)
		}
		if res.Table == "" {
			res.Table = res.Type
		}
		if res.PrimaryKey == "" {
			res.PrimaryKey = "id"
		}
		if !res.HasColumn(res.PrimaryKey) {
			res.Columns = append([]string{res.PrimaryKey}, res.Columns...)
		}
		res.Columns = slices.Clone(res.Columns)
		res.Relationships = slices.Clone(res.Relationships)
		reg.resources[res.Type] = &res
		reg.order = append(reg.order, res.Type)
	}

	if err := reg.validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(resources ...Resource) *Registry {
	reg, err := NewRegistry(resources...)
	if err != nil {
		panic(err)
	}
	return reg
}

// validate checks that every relationship points at a known type and that
// both join keys are columns of their tables.
func (r *Registry) validate() error {
	for _, typ := range r.order {
		res := r.resources[typ]
		seen := make(map[string]bool, len(res.Relationships))
		for _, rel := range res.Relationships {
			if rel.Name == "" {
				return fmt.Errorf("resource %s: relationship name is required", typ)
			}
			if seen[rel.Name] {
				return fmt.Errorf("resource %s: duplicate relationship %s", typ, rel.Name)
			}
			seen[rel.Name] = true
			if res.HasColumn(rel.Name) {
				return fmt.Errorf("resource %s: relationship %s shadows a column", typ, rel.Name)
			}

			target, ok := r.resources[rel.Target]
			if !ok {
				return fmt.Errorf("resource %s: relationship %s targets unknown type %q", typ, rel.Name, rel.Target)
			}
			if !res.HasColumn(rel.LocalKey) {
				return fmt.Errorf("resource %s: relationship %s local key %q is not a column", typ, rel.Name, rel.LocalKey)
			}
			if !target.HasColumn(rel.ForeignKey) {
				return fmt.Errorf("resource %s: relationship %s foreign key %q is not a column of %s", typ, rel.Name, rel.ForeignKey, rel.Target)
			}
		}
	}
	return nil
}

// Types returns the registered types in registration order.
func (r *Registry) Types() []string {
	return slices.Clone(r.order)
}

// Resource returns the resource by type.
func (r *Registry) Resource(typ string) (*Resource, bool) {
	res, ok := r.resources[typ]
	return res, ok
}

// Columns returns the columns of a type, or nil for an unknown type.
func (r *Registry) Columns(typ string) []string {
	if res, ok := r.resources[typ]; ok {
		return res.Columns
	}
	return nil
}

// PrimaryKey returns the primary key column of a type, or "" for an unknown type.
func (r *Registry) PrimaryKey(typ string) string {
	if res, ok := r.resources[typ]; ok {
		return res.PrimaryKey
	}
	return ""
}

// Relationships returns the relationships of a type, or nil for an unknown type.
func (r *Registry) Relationships(typ string) []Relationship {
	if res, ok := r.resources[typ]; ok {
		return res.Relationships
	}
	return nil
}

// Relationship returns the named relationship of a type.
func (r *Registry) Relationship(typ, name string) (Relationship, bool) {
	if res, ok := r.resources[typ]; ok {
		return res.Relationship(name)
	}
	return Relationship{}, false
}
