package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "armrng-report-v1.schema.json"

//go:embed report.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Schema returns the embedded JSON Schema for JSON reports.
func Schema() []byte {
	return schemaJSON
}

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("report: add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("report: compile schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Validate checks a JSON report against the embedded schema.
func Validate(data []byte) error {
	s, err := compiled()
	if err != nil {
		return err
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("report: unmarshal: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("report: schema validation: %w", err)
	}
	return nil
}
