// Package document assembles JSON:API response documents.
//
// A Document is either primary data ({data, included, links, meta}), a
// meta-only document, or an error document ({errors}). The top-level
// jsonapi member is not emitted.
//
// Invariants:
//   - included holds each (type, id) at most once and never repeats a
//     primary resource
//   - a to-many relationship with no loaded targets renders data: []
//   - a to-one relationship with no loaded target renders data: null
package document

import (
	"encoding/json"
	"io"

	"github.com/roach88/jsonapi/internal/ir"
)

// MediaType is the JSON:API media type.
const MediaType = "application/vnd.api+json"

// Links is a JSON:API links object.
type Links map[string]string

// Meta is a JSON:API meta object.
type Meta map[string]any

// null renders an explicit "data": null.
var null = json.RawMessage("null")

// Document is a top-level JSON:API document.
//
// Data holds *ResourceObject, []*ResourceObject, *ir.Identifier,
// []ir.Identifier or an explicit null; a nil Data omits the member.
type Document struct {
	Data     any               `json:"data,omitempty"`
	Errors   []*ErrorObject    `json:"errors,omitempty"`
	Included []*ResourceObject `json:"included,omitempty"`
	Links    Links             `json:"links,omitempty"`
	Meta     Meta              `json:"meta,omitempty"`
}

// BuildSingle returns a document whose primary data is one resource.
func BuildSingle(resource *ResourceObject, included []*ResourceObject, links Links, meta Meta) *Document {
	return &Document{Data: resource, Included: included, Links: links, Meta: meta}
}

// BuildCollection returns a document whose primary data is a list of resources.
// A nil list renders as [].
func BuildCollection(resources []*ResourceObject, included []*ResourceObject, links Links, meta Meta) *Document {
	if resources == nil {
		resources = []*ResourceObject{}
	}
	return &Document{Data: resources, Included: included, Links: links, Meta: meta}
}

// BuildNull returns a document with "data": null, used for an empty to-one
// related resource.
func BuildNull(links Links) *Document {
	return &Document{Data: null, Links: links}
}

// BuildLinkage returns a relationship document: the relationship object's
// links and data at the top level.
func BuildLinkage(rel *RelationshipObject, meta Meta) *Document {
	var data any = null
	switch d := rel.Data.(type) {
	case []ir.Identifier:
		data = d
	case *ir.Identifier:
		if d != nil {
			data = d
		}
	}
	return &Document{Data: data, Links: rel.Links, Meta: meta}
}

// BuildMeta returns a meta-only document.
func BuildMeta(meta Meta) *Document {
	return &Document{Meta: meta}
}

// BuildError returns an error document.
func BuildError(errs ...*ErrorObject) *Document {
	if errs == nil {
		errs = []*ErrorObject{}
	}
	return &Document{Errors: errs}
}

// IsError reports whether the document is an error document.
func (d *Document) IsError() bool {
	return d != nil && d.Errors != nil
}

// Encode writes the document as JSON. URLs are written without HTML escaping.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// EncodeIndent is like Encode with two-space indentation.
func EncodeIndent(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
