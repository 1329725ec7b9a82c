package pipeline

import (
	"context"
	"maps"
	"net/url"

	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/include"
	"github.com/roach88/jsonapi/internal/ir"
	"github.com/roach88/jsonapi/internal/model"
	"github.com/roach88/jsonapi/internal/queryir"
)

func (p *Pipeline) list(ctx context.Context, call *Call) (*document.Document, error) {
	q := &queryir.ReadQuery{Type: call.Type, Request: call.Request}
	return p.collection(ctx, call, q, p.serializer.CollectionURL(call.Type))
}

func (p *Pipeline) retrieve(ctx context.Context, call *Call) (*document.Document, error) {
	rec, err := p.data.Retrieve(ctx, &queryir.ReadQuery{Type: call.Type, Request: call.Request}, call.ID)
	if err != nil {
		return nil, err
	}
	return p.single(call, rec, p.serializer.ResourceURL(call.Type, call.ID)), nil
}

func (p *Pipeline) create(ctx context.Context, call *Call) (*document.Document, error) {
	body, err := p.body(call)
	if err != nil {
		return nil, err
	}
	rec, err := p.data.Create(ctx, body)
	if err != nil {
		return nil, err
	}
	return p.single(call, rec, p.serializer.ResourceURL(rec.Type, rec.ID)), nil
}

func (p *Pipeline) update(ctx context.Context, call *Call) (*document.Document, error) {
	body, err := p.body(call)
	if err != nil {
		return nil, err
	}
	switch body.ID {
	case "":
		body.ID = call.ID
	case call.ID:
	default:
		return nil, ir.NewValidationError("/data/id", "id %s does not match the URL id %s", body.ID, call.ID)
	}

	rec, err := p.data.Update(ctx, body)
	if err != nil {
		return nil, err
	}
	return p.single(call, rec, p.serializer.ResourceURL(call.Type, call.ID)), nil
}

func (p *Pipeline) destroy(ctx context.Context, call *Call) (*document.Document, error) {
	if err := p.data.Delete(ctx, call.Type, call.ID); err != nil {
		return nil, err
	}
	return document.BuildMeta(document.Meta{"deleted": true}), nil
}

// relationship responds with the linkage of one relationship. Only key
// columns are loaded.
func (p *Pipeline) relationship(ctx context.Context, res *model.Resource, call *Call) (*document.Document, error) {
	if _, ok := res.Relationship(call.Relationship); !ok {
		return nil, ir.NewUnknownRelationshipError(call.Type, call.Relationship)
	}

	parent, err := p.linkage(ctx, res, call.ID, call.Relationship)
	if err != nil {
		return nil, err
	}
	rel, _ := p.serializer.Relationship(parent, call.Relationship)
	return document.BuildLinkage(rel, nil), nil
}

// related responds with the resources a relationship points at. To-many
// targets are a paginated collection with the request applied to the
// target type; a to-one target is a single resource or null.
func (p *Pipeline) related(ctx context.Context, res *model.Resource, call *Call) (*document.Document, error) {
	rel, ok := res.Relationship(call.Relationship)
	if !ok {
		return nil, ir.NewUnknownRelationshipError(call.Type, call.Relationship)
	}
	self := p.serializer.ResourceURL(call.Type, call.ID) + "/" + rel.Name

	if rel.ToMany {
		parent, err := p.data.Retrieve(ctx, &queryir.ReadQuery{
			Type:    call.Type,
			Request: fieldsOnly(call.Type, rel.LocalKey),
		}, call.ID)
		if err != nil {
			return nil, err
		}

		key := parent.Attributes[rel.LocalKey]
		if rel.LocalKey == res.PrimaryKey {
			key = ir.BindID(parent.ID)
		}
		q := &queryir.ReadQuery{
			Type:        rel.Target,
			Request:     call.Request,
			Constraints: []queryir.Constraint{{Column: rel.ForeignKey, Value: key}},
		}
		return p.collection(ctx, call, q, self)
	}

	parent, err := p.linkage(ctx, res, call.ID, rel.Name)
	if err != nil {
		return nil, err
	}
	linked, _ := parent.Relation(rel.Name)
	ids := linked.Identifiers()
	if len(ids) == 0 {
		return document.BuildNull(document.Links{"self": selfURL(call, self)}), nil
	}

	target, err := p.data.Retrieve(ctx, &queryir.ReadQuery{Type: rel.Target, Request: call.Request}, ids[0].ID)
	if err != nil {
		return nil, err
	}
	return p.single(call, target, self), nil
}

// linkage loads a record with the keys of one relationship and nothing else.
func (p *Pipeline) linkage(ctx context.Context, res *model.Resource, id, name string) (*ir.Record, error) {
	req := fieldsOnly(res.Type, res.PrimaryKey)
	req.Include = []string{name}
	return p.data.Retrieve(ctx, &queryir.ReadQuery{
		Type:        res.Type,
		Request:     req,
		LinkageOnly: true,
	}, id)
}

func (p *Pipeline) collection(ctx context.Context, call *Call, q *queryir.ReadQuery, self string) (*document.Document, error) {
	pager := document.NewPaginator(call.Request, p.pageLimit)
	if pager.Enabled() {
		q.Offset, q.Limit, q.WithTotal = pager.Offset, pager.Limit, true
	}

	page, err := p.data.List(ctx, q)
	if err != nil {
		return nil, err
	}
	data, included := p.serializer.Compound(page.Records, call.Request.Fields, p.includes(q.Type, call.Request))

	links := document.Links{"self": selfURL(call, self)}
	u := call.URL
	if u == nil {
		u, _ = url.Parse(self)
	}
	maps.Copy(links, pager.Links(u, page.Total))
	return document.BuildCollection(data, included, links, pager.Meta(page.Total)), nil
}

func (p *Pipeline) single(call *Call, rec *ir.Record, self string) *document.Document {
	data, included := p.serializer.Compound([]*ir.Record{rec}, call.Request.Fields, p.includes(rec.Type, call.Request))
	return document.BuildSingle(data[0], included, document.Links{"self": selfURL(call, self)}, nil)
}

// includes plans the include paths of req the way the data layer loads them.
func (p *Pipeline) includes(typ string, req *queryir.Request) *include.Tree {
	return include.Plan(p.models, typ, req.Include, include.Options{Fields: req.Fields})
}

// selfURL returns the request URL when known, otherwise the canonical one.
func selfURL(call *Call, canonical string) string {
	if call.URL == nil {
		return canonical
	}
	return call.URL.String()
}

// body returns the decoded resource object of a create or update.
func (p *Pipeline) body(call *Call) (*ir.Mutation, error) {
	if call.Body == nil {
		return nil, ir.NewValidationError("/data", "request body must contain a resource object")
	}
	if call.Body.Type != call.Type {
		return nil, ir.NewValidationError("/data/type", "type %s does not match the endpoint type %s", call.Body.Type, call.Type)
	}
	return call.Body, nil
}

func fieldsOnly(typ string, columns ...string) *queryir.Request {
	req := queryir.NewRequest()
	req.Fields[typ] = columns
	return req
}
