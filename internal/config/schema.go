package config

import (
	"encoding/json"
	"fmt"

	pkgconfig "github.com/goran-ethernal/ChainDispatch/pkg/config"
	"github.com/invopop/jsonschema"
)

const schemaID = "https://github.com/goran-ethernal/ChainDispatch/config.schema.json"

// Schema reflects the JSON schema of the configuration file. Field names follow the json
// tags, and Duration fields are described as strings such as "15s".
func Schema() *jsonschema.Schema {
	reflector := &jsonschema.Reflector{FieldNameTag: "json"}

	schema := reflector.Reflect(&pkgconfig.Config{})
	schema.ID = schemaID
	schema.Title = "ChainDispatch configuration"

	return schema
}

// SchemaJSON returns the indented JSON encoding of Schema.
func SchemaJSON() ([]byte, error) {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode config schema: %w", err)
	}
	return data, nil
}
