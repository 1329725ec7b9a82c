package document

import (
	"slices"
	"strings"

	"github.com/roach88/jsonapi/internal/include"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/model"
)

// ResourceObject is a JSON:API resource object.
type ResourceObject struct {
	Type          string                         `json:"type"`
	ID            string                         `json:"id"`
	Attributes    map[string]any                 `json:"attributes,omitempty"`
	Relationships map[string]*RelationshipObject `json:"relationships,omitempty"`
	Links         Links                          `json:"links,omitempty"`
}

// Identifier returns the resource identity.
func (r *ResourceObject) Identifier() ir.Identifier {
	return ir.Identifier{Type: r.Type, ID: r.ID}
}

// RelationshipObject is a JSON:API relationship object.
//
// Data is []ir.Identifier for a to-many relationship (never nil) and
// *ir.Identifier for a to-one relationship (nil renders null).
type RelationshipObject struct {
	Links Links `json:"links,omitempty"`
	Data  any   `json:"data"`
}

// Serializer renders loaded records as resource objects.
// A Serializer is immutable and safe for concurrent use.
type Serializer struct {
	models  model.Provider
	baseURL string
}

// NewSerializer creates a Serializer. baseURL prefixes every link; an empty
// baseURL yields root-relative links.
func NewSerializer(models model.Provider, baseURL string) *Serializer {
	return &Serializer{models: models, baseURL: strings.TrimRight(baseURL, "/")}
}

// BaseURL returns the link prefix.
func (s *Serializer) BaseURL() string {
	return s.baseURL
}

// ResourceURL returns base/type/id.
func (s *Serializer) ResourceURL(typ, id string) string {
	return s.baseURL + "/" + typ + "/" + id
}

// CollectionURL returns base/type.
func (s *Serializer) CollectionURL(typ string) string {
	return s.baseURL + "/" + typ
}

// Resource renders one record.
//
// fields is the request's sparse fieldsets; when fields[r.Type] is non-empty
// only the named attributes and relationships are rendered. forced names
// relationships rendered regardless of the fieldset (the next hops of the
// include paths that reached r).
func (s *Serializer) Resource(r *ir.Record, fields map[string][]string, forced []string) *ResourceObject {
	sparse := fields[r.Type]
	visible := func(name string) bool {
		return len(sparse) == 0 || slices.Contains(sparse, name)
	}

	obj := &ResourceObject{
		Type:  r.Type,
		ID:    r.ID,
		Links: Links{"self": s.ResourceURL(r.Type, r.ID)},
	}

	pk := s.models.PrimaryKey(r.Type)
	for name, value := range r.Attributes {
		if name == pk || !visible(name) {
			continue
		}
		if obj.Attributes == nil {
			obj.Attributes = make(map[string]any)
		}
		obj.Attributes[name] = value
	}

	for _, rel := range s.models.Relationships(r.Type) {
		if !visible(rel.Name) && !slices.Contains(forced, rel.Name) {
			continue
		}
		if obj.Relationships == nil {
			obj.Relationships = make(map[string]*RelationshipObject)
		}
		obj.Relationships[rel.Name] = s.relationship(r, rel)
	}

	return obj
}

// Relationship renders one relationship of a record.
// Returns false when the type declares no such relationship.
func (s *Serializer) Relationship(r *ir.Record, name string) (*RelationshipObject, bool) {
	rel, ok := s.models.Relationship(r.Type, name)
	if !ok {
		return nil, false
	}
	return s.relationship(r, rel), true
}

func (s *Serializer) relationship(r *ir.Record, rel model.Relationship) *RelationshipObject {
	self := s.ResourceURL(r.Type, r.ID)
	obj := &RelationshipObject{
		Links: Links{
			"self":    self + "/relationships/" + rel.Name,
			"related": self + "/" + rel.Name,
		},
	}

	loaded, _ := r.Relation(rel.Name)
	ids := loaded.Identifiers()
	switch {
	case rel.ToMany:
		obj.Data = ids
	case len(ids) == 0:
		obj.Data = (*ir.Identifier)(nil)
	default:
		obj.Data = &ids[0]
	}
	return obj
}

// Compound renders primary records and the deduplicated included resources
// reached through the paths of plan. Only paths the plan kept force
// relationship objects; a nil plan includes nothing.
func (s *Serializer) Compound(records []*ir.Record, fields map[string][]string, plan *include.Tree) (data, included []*ResourceObject) {
	tree := newIncludeTree(plan.Paths())

	data = make([]*ResourceObject, 0, len(records))
	for _, r := range records {
		data = append(data, s.Resource(r, fields, tree.names))
	}

	inc := s.NewIncluded(fields)
	inc.Exclude(records...)
	for _, r := range records {
		inc.walk(r, tree)
	}
	return data, inc.Objects()
}
