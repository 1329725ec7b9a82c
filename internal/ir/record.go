package ir

// Identifier is the (type, id) pair that identifies a resource.
type Identifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String returns "type:id".
func (i Identifier) String() string {
	return i.Type + ":" + i.ID
}

// Record is one row loaded by the data layer, keyed by resource type.
//
// Attributes holds the loaded non-primary-key columns. Columns excluded by a
// sparse projection are absent, not nil.
//
// Relations holds eagerly loaded relationships. A relationship missing from
// the map was not loaded; the document assembler renders it with the
// empty-data policy ([] for to-many, null for to-one).
type Record struct {
	Type       string
	ID         string
	Attributes map[string]any
	Relations  map[string]*Relation
}

// Relation is a loaded relationship of a Record.
type Relation struct {
	ToMany bool
	One    *Record   // to-one target; nil when the foreign key is NULL
	Many   []*Record // to-many targets in load order
}

// NewRecord creates an empty Record.
func NewRecord(typ, id string) *Record {
	return &Record{
		Type:       typ,
		ID:         id,
		Attributes: make(map[string]any),
		Relations:  make(map[string]*Relation),
	}
}

// Identifier returns the record identity.
func (r *Record) Identifier() Identifier {
	return Identifier{Type: r.Type, ID: r.ID}
}

// Relation returns the loaded relation by name.
func (r *Record) Relation(name string) (*Relation, bool) {
	rel, ok := r.Relations[name]
	return rel, ok
}

// SetToOne marks a to-one relationship as loaded with the given target.
// A nil target records a loaded but empty relationship.
func (r *Record) SetToOne(name string, target *Record) {
	r.ensureRelations()
	r.Relations[name] = &Relation{One: target}
}

// InitToMany marks a to-many relationship as loaded with no targets yet.
// Calling it again keeps the already attached targets.
func (r *Record) InitToMany(name string) *Relation {
	r.ensureRelations()
	if rel, ok := r.Relations[name]; ok && rel.ToMany {
		return rel
	}
	rel := &Relation{ToMany: true, Many: []*Record{}}
	r.Relations[name] = rel
	return rel
}

// AppendToMany attaches a target to a to-many relationship.
func (r *Record) AppendToMany(name string, target *Record) {
	rel := r.InitToMany(name)
	rel.Many = append(rel.Many, target)
}

func (r *Record) ensureRelations() {
	if r.Relations == nil {
		r.Relations = make(map[string]*Relation)
	}
}

// Identifiers returns the identifiers of the relation targets in order.
// Returns an empty slice (not nil) for an empty relation.
func (rel *Relation) Identifiers() []Identifier {
	if rel == nil {
		return []Identifier{}
	}
	if !rel.ToMany {
		if rel.One == nil {
			return []Identifier{}
		}
		return []Identifier{rel.One.Identifier()}
	}
	ids := make([]Identifier, 0, len(rel.Many))
	for _, t := range rel.Many {
		ids = append(ids, t.Identifier())
	}
	return ids
}

// Targets returns the loaded target records.
func (rel *Relation) Targets() []*Record {
	if rel == nil {
		return nil
	}
	if rel.ToMany {
		return rel.Many
	}
	if rel.One == nil {
		return nil
	}
	return []*Record{rel.One}
}

// Page is a window of primary records plus the unwindowed total.
// Total is -1 when it was not computed.
type Page struct {
	Records []*Record
	Total   int
}
