// ABOUTME: JSON schema validation for widget configurations
// ABOUTME: Compiles the embedded schema once and validates configs before storage

package widget

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidConfig is returned when a config fails schema validation.
var ErrInvalidConfig = errors.New("invalid widget config")

//go:embed config.schema.json
var configSchemaJSON []byte

const configSchemaName = "widget-config.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(configSchemaName, bytes.NewReader(configSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("loading widget schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(configSchemaName)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compiling widget schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// Validate checks cfg against the widget config schema.
func Validate(cfg Config) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	// The validator works on generic JSON values, not Go structs.
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal widget config: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("normalize widget config: %w", err)
	}
	// Zero timestamps are not part of the editable surface.
	delete(payload, "createdAt")
	delete(payload, "updatedAt")
	delete(payload, "ownerId")

	if err := s.Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
