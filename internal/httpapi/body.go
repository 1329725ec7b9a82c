package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/roach88/jsonapi/internal/ir"
)

// maxBodyBytes bounds the size of a create or update body.
const maxBodyBytes = 1 << 20

type resourceBody struct {
	Data *struct {
		Type          string                     `json:"type"`
		ID            string                     `json:"id"`
		Attributes    map[string]any             `json:"attributes"`
		Relationships map[string]json.RawMessage `json:"relationships"`
	} `json:"data"`
}

// decodeBody reads {"data": {type, id, attributes, relationships}}.
// r is expected to be bounded by http.MaxBytesReader; hitting the bound is a
// REQUEST_TOO_LARGE error.
//
// To-one linkage becomes a Mutation.ToOne entry, a null linkage clears the
// relationship and to-many linkage is ignored.
func decodeBody(r io.Reader) (*ir.Mutation, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ir.NewRequestTooLargeError(tooLarge.Limit)
		}
		return nil, fmt.Errorf("read body: %w", err)
	}

	var body resourceBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, ir.NewValidationError("", "request body is not a valid JSON:API document: %v", err)
	}
	if body.Data == nil {
		return nil, ir.NewValidationError("/data", "request body must contain a resource object")
	}

	m := &ir.Mutation{
		Type:       body.Data.Type,
		ID:         body.Data.ID,
		Attributes: body.Data.Attributes,
	}
	for name, rel := range body.Data.Relationships {
		pointer := "/data/relationships/" + name + "/data"

		data := gjson.GetBytes(rel, "data")
		switch {
		case !data.Exists():
			return nil, ir.NewValidationError(pointer, "relationship %s must contain data", name)
		case data.IsArray():
			continue
		case data.Type == gjson.Null:
			setToOne(m, name, nil)
		case data.IsObject():
			typ, id := data.Get("type"), data.Get("id")
			if typ.Type != gjson.String || id.Type != gjson.String {
				return nil, ir.NewValidationError(pointer, "relationship %s linkage must have a string type and id", name)
			}
			setToOne(m, name, &ir.Identifier{Type: typ.String(), ID: id.String()})
		default:
			return nil, ir.NewValidationError(pointer, "relationship %s linkage must be an object, a list or null", name)
		}
	}
	return m, nil
}

func setToOne(m *ir.Mutation, name string, target *ir.Identifier) {
	if m.ToOne == nil {
		m.ToOne = make(map[string]*ir.Identifier)
	}
	m.ToOne[name] = target
}
