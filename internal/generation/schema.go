package generation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"google.golang.org/genai"
)

// SchemaType is a JSON type in a declared output schema.
type SchemaType string

const (
	TypeObject  SchemaType = "object"
	TypeArray   SchemaType = "array"
	TypeString  SchemaType = "string"
	TypeInteger SchemaType = "integer"
)

// Property is a named field of an object schema. Order is significant.
type Property struct {
	Name   string
	Schema *Schema
}

// Schema is a backend-neutral declaration of the JSON a request must return.
// All object properties are required.
type Schema struct {
	Name        string
	Type        SchemaType
	Description string
	Properties  []Property
	Items       *Schema
}

// PropertyNames returns the object's field names in declaration order.
func (s *Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for _, prop := range s.Properties {
		names = append(names, prop.Name)
	}
	return names
}

// QuestionsSchema: array of {id, text, options} in that order.
var QuestionsSchema = &Schema{
	Name:        "decision_questions",
	Type:        TypeArray,
	Description: "Multiple-choice questions about the user's decision",
	Items: &Schema{
		Type: TypeObject,
		Properties: []Property{
			{Name: "id", Schema: &Schema{Type: TypeInteger, Description: "Unique positive question number"}},
			{Name: "text", Schema: &Schema{Type: TypeString, Description: "The question"}},
			{Name: "options", Schema: &Schema{
				Type:        TypeArray,
				Description: "Three or four distinct answer options",
				Items:       &Schema{Type: TypeString},
			}},
		},
	},
}

var stringList = &Schema{Type: TypeArray, Items: &Schema{Type: TypeString}}

// AnalysisSchema: the six fields of the structured recommendation.
var AnalysisSchema = &Schema{
	Name:        "decision_analysis",
	Type:        TypeObject,
	Description: "Personalised recommendation based on the user's answers",
	Properties: []Property{
		{Name: "finalRecommendation", Schema: &Schema{Type: TypeString, Description: "The recommended choice"}},
		{Name: "summary", Schema: &Schema{Type: TypeString, Description: "Short explanation of the recommendation"}},
		{Name: "reasoning", Schema: stringList},
		{Name: "pros", Schema: stringList},
		{Name: "cons", Schema: stringList},
		{Name: "nextSteps", Schema: stringList},
	},
}

// toGenai converts a schema to the Gemini representation, keeping field order
// through PropertyOrdering.
func toGenai(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{Description: s.Description}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for _, prop := range s.Properties {
			out.Properties[prop.Name] = toGenai(prop.Schema)
		}
		out.Required = s.PropertyNames()
		out.PropertyOrdering = s.PropertyNames()
	case TypeArray:
		out.Type = genai.TypeArray
		out.Items = toGenai(s.Items)
	case TypeInteger:
		out.Type = genai.TypeInteger
	default:
		out.Type = genai.TypeString
	}
	return out
}

// toJSONSchema converts a schema to the strict JSON Schema dialect used by
// OpenAI structured outputs. jsonschema.Definition keeps properties in a map,
// so the result marshals itself to keep declaration order.
func toJSONSchema(s *Schema) orderedSchema {
	return orderedSchema{schema: s}
}

type orderedSchema struct {
	schema *Schema
}

func (o orderedSchema) MarshalJSON() ([]byte, error) {
	s := o.schema
	if s == nil {
		return []byte("{}"), nil
	}

	var obj orderedObject
	switch s.Type {
	case TypeObject:
		obj.add("type", jsonschema.Object)
		if s.Description != "" {
			obj.add("description", s.Description)
		}
		props := make(orderedObject, 0, len(s.Properties))
		for _, prop := range s.Properties {
			props.add(prop.Name, toJSONSchema(prop.Schema))
		}
		obj.add("properties", props)
		obj.add("required", s.PropertyNames())
		obj.add("additionalProperties", false)
	case TypeArray:
		obj.add("type", jsonschema.Array)
		if s.Description != "" {
			obj.add("description", s.Description)
		}
		obj.add("items", toJSONSchema(s.Items))
	case TypeInteger:
		obj.add("type", jsonschema.Integer)
		if s.Description != "" {
			obj.add("description", s.Description)
		}
	default:
		obj.add("type", jsonschema.String)
		if s.Description != "" {
			obj.add("description", s.Description)
		}
	}
	return obj.MarshalJSON()
}

type orderedField struct {
	key   string
	value any
}

// orderedObject is a JSON object that keeps insertion order.
type orderedObject []orderedField

func (o *orderedObject) add(key string, value any) {
	*o = append(*o, orderedField{key: key, value: value})
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(field.key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(field.value)
		if err != nil {
			return nil, fmt.Errorf("marshal schema field %s: %w", field.key, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
