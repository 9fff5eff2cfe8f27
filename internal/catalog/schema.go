package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema plus its source document.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// Issue is one schema violation.
type Issue struct {
	// Field is the JSON pointer of the offending value ("" for the root).
	Field   string `json:"field"`
	Keyword string `json:"keyword"`
	Message string `json:"message"`
}

func compileSchema(url string, doc any) (*Schema, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("catalog: encoding schema %s: %w", url, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("catalog: adding schema %s: %w", url, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: compiling schema %s: %w", url, err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustCompile compiles an inline schema document, panicking on error.
// Intended for tests and static plugin tables.
func MustCompile(doc string) *Schema {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		panic(err)
	}
	s, err := compileSchema("https://grayhub.invalid/inline.json", v)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema source. A nil Schema returns nil.
func (s *Schema) Raw() json.RawMessage {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate checks v against the schema and returns the violations, or nil
// when v is valid. v may be raw JSON (json.RawMessage or []byte) or any
// value encoding/json can marshal. An empty raw body is treated as null.
func (s *Schema) Validate(v any) []Issue {
	doc, err := normalise(v)
	if err != nil {
		return []Issue{{Message: err.Error()}}
	}

	err = s.compiled.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Issue{{Message: err.Error()}}
	}
	issues := collectIssues(ve, nil)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
	return issues
}

// normalise converts v into the representation the validator expects:
// the result of decoding JSON with numbers kept as json.Number.
func normalise(v any) (any, error) {
	var raw []byte
	switch val := v.(type) {
	case json.RawMessage:
		raw = val
	case []byte:
		raw = val
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("value is not JSON encodable: %w", err)
		}
		raw = encoded
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("null")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("malformed json: trailing data")
	}
	return doc, nil
}

// collectIssues flattens the validator's error tree to its leaves.
func collectIssues(ve *jsonschema.ValidationError, out []Issue) []Issue {
	if len(ve.Causes) == 0 {
		return append(out, Issue{
			Field:   ve.InstanceLocation,
			Keyword: ve.KeywordLocation,
			Message: ve.Message,
		})
	}
	for _, cause := range ve.Causes {
		out = collectIssues(cause, out)
	}
	return out
}
