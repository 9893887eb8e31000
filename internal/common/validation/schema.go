// Package validation holds the JSON-schema and struct-tag validators.
package validation

import (
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

// MustCompile panics on an invalid schema document.
func MustCompile(schemaJSON string) *Schema {
	s, err := Compile(schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

func Compile(schemaJSON string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// Validate checks doc and returns one message per violation.
func (s *Schema) Validate(doc []byte) ([]string, error) {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return msgs, nil
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Schema{}
)

// Cached compiles schemaJSON once per process.
func Cached(schemaJSON string) (*Schema, error) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	if s, ok := cache[schemaJSON]; ok {
		return s, nil
	}
	s, err := Compile(schemaJSON)
	if err != nil {
		return nil, err
	}
	cache[schemaJSON] = s
	return s, nil
}
