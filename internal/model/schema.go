package model

import (
	"fmt"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"google.golang.org/genai"
)

var genaiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"integer": genai.TypeInteger,
	"number":  genai.TypeNumber,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

// eachProperty visits properties in declaration order.
func eachProperty(props *orderedmap.OrderedMap[string, *jsonschema.Schema], fn func(name string, prop *jsonschema.Schema)) {
	if props == nil {
		return
	}
	for p := props.Oldest(); p != nil; p = p.Next() {
		fn(p.Key, p.Value)
	}
}

// toGenaiSchema converts a reflected JSON schema into Gemini's schema
// dialect, keeping the struct field order as the property ordering.
func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        genaiTypes[s.Type],
		Description: s.Description,
		Required:    s.Required,
	}
	for _, e := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(e))
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	eachProperty(s.Properties, func(name string, prop *jsonschema.Schema) {
		if out.Properties == nil {
			out.Properties = make(map[string]*genai.Schema)
		}
		out.Properties[name] = toGenaiSchema(prop)
		out.PropertyOrdering = append(out.PropertyOrdering, name)
	})
	return out
}
