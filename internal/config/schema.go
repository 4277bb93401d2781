// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SP User Service Contributors

package config

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://sp-platform.dev/schemas/usersvc.config.schema.json"

const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var durationType = reflect.TypeOf(time.Duration(0))

// GenerateSchema generates a JSON Schema for the YAML config file from Config.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     durationPattern,
					Description: "Go duration, e.g. 30s or 24h",
				}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "usersvc configuration"
	schema.Description = "Schema for usersvc YAML config files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(compileSchema)

func compileSchema() (*jschema.Schema, error) {
	schemaBytes, err := GenerateSchema()
	if err != nil {
		return nil, err
	}

	var schemaData any
	if err := json.Unmarshal(schemaBytes, &schemaData); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "parse schema").Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("config.schema.json", schemaData); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "add schema resource").Wrap(err)
	}
	sch, err := c.Compile("config.schema.json")
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("operation", "compile schema").Wrap(err)
	}
	return sch, nil
}

// ValidateSchema checks YAML config data against the config schema.
// Unknown keys and values of the wrong type are rejected. An empty document is valid.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_INVALID").With("operation", "parse yaml").Wrap(err)
	}
	if doc == nil {
		return nil
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}

	if err := sch.Validate(doc); err != nil {
		return oops.Code("CONFIG_INVALID").
			With("operation", "validate schema").
			Errorf("%s", FormatSchemaError(err))
	}
	return nil
}

// FormatSchemaError flattens a schema validation error to one line per problem.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(err.Error()), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "jsonschema validation failed") {
			continue
		}
		out = append(out, strings.TrimPrefix(line, "- "))
	}
	if len(out) == 0 {
		return strings.TrimSpace(err.Error())
	}
	return strings.Join(out, "; ")
}
