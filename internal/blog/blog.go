// Package blog is the demo dataset: users who write articles, comments on
// articles, and photos taken by users.
//
// It backs the seed command and serves as the shared fixture for tests.
package blog

import (
	_ "embed"
	"fmt"

	"github.com/roach88/jsonapi/internal/model"
)

//go:embed resources.yaml
var ResourcesYAML []byte

//go:embed schema.sql
var SchemaSQL string

//go:embed seed.sql
var SeedSQL string

// Registry returns the blog model.
func Registry() (*model.Registry, error) {
	schema, err := model.ParseYAML(ResourcesYAML)
	if err != nil {
		return nil, err
	}
	reg, err := model.NewRegistry(schema.Resources...)
	if err != nil {
		return nil, fmt.Errorf("invalid blog schema: %w", err)
	}
	return reg, nil
}

// MustRegistry is like Registry but panics on error.
func MustRegistry() *model.Registry {
	reg, err := Registry()
	if err != nil {
		panic(err)
	}
	return reg
}
