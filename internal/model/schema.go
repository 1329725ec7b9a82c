package model

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Schema is the on-disk form of a Registry.
//
// YAML:
//
//	resources:
//	  - type: users
//	    columns: [id, name]
//	    relationships:
//	      - {name: articles, target: articles, to_many: true, local_key: id, foreign_key: author_id}
//
// CUE files use the same field names.
type Schema struct {
	Resources []Resource `yaml:"resources" json:"resources"`
}

// LoadFile reads a schema file and builds a Registry.
// The format is chosen by extension: .yaml/.yml or .cue.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var schema *Schema
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		schema, err = ParseYAML(data)
	case ".cue":
		schema, err = ParseCUE(path, data)
	default:
		return nil, fmt.Errorf("unsupported schema format %q", ext)
	}
	if err != nil {
		return nil, err
	}

	reg, err := NewRegistry(schema.Resources...)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return reg, nil
}

// ParseYAML decodes a YAML schema, rejecting unknown fields.
func ParseYAML(data []byte) (*Schema, error) {
	var schema Schema
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&schema); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &schema, nil
}

// ParseCUE compiles and decodes a CUE schema.
func ParseCUE(filename string, data []byte) (*Schema, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", filename, err)
	}
	if err := value.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CUE in %s: %w", filename, err)
	}

	var schema Schema
	if err := value.Decode(&schema); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filename, err)
	}
	return &schema, nil
}
