package ir

// Mutation is a create or update of one resource decoded from a request body.
type Mutation struct {
	Type string

	// ID is the client-generated id on create or the target id on update.
	ID string

	// Attributes maps column names to new values.
	Attributes map[string]any

	// ToOne maps to-one relationship names to the new target id.
	// A nil target clears the relationship.
	ToOne map[string]*Identifier
}
