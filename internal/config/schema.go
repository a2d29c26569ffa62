// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/lovelog/lovelog/internal/auth"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://lovelog.dev/schemas/config.schema.json"

const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	compiledOnce   sync.Once
	compiledSchema *jschema.Schema
	compileErr     error
)

// GenerateSchema returns the JSON Schema of the config file. Secrets are not
// part of it since they are only read from the environment.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		FieldNameTag:               "koanf",
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Pattern: durationPattern}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "lovelog configuration"
	schema.Description = "Schema for lovelog config.yaml files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "marshal schema").Wrap(err)
	}
	return data, nil
}

// ValidateFile checks YAML config data against the schema. Unknown keys and
// out-of-range enums are reported in the "details" context.
func ValidateFile(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").
			With(auth.DetailsKey, []string{"invalid YAML: " + err.Error()}).
			Wrap(err)
	}
	if doc == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees JSON number and map types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").
			With(auth.DetailsKey, []string{"config must be a mapping of string keys"}).
			Wrap(err)
	}
	inst, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return oops.Code("CONFIG_SCHEMA_INVALID").Wrap(err)
	}

	sch, err := compiled()
	if err != nil {
		return err
	}

	if err := sch.Validate(inst); err != nil {
		var verr *jschema.ValidationError
		details := []string{err.Error()}
		if errors.As(err, &verr) {
			details = leafMessages(verr, message.NewPrinter(language.English))
		}
		return oops.Code("CONFIG_SCHEMA_INVALID").
			With(auth.DetailsKey, details).
			Errorf("config file does not match schema")
	}
	return nil
}

func compiled() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		data, err := GenerateSchema()
		if err != nil {
			compileErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "parse schema").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("config.schema.json", doc); err != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "add schema").Wrap(err)
			return
		}
		compiledSchema, compileErr = c.Compile("config.schema.json")
		if compileErr != nil {
			compileErr = oops.Code("CONFIG_SCHEMA_FAILED").With("operation", "compile schema").Wrap(compileErr)
		}
	})
	return compiledSchema, compileErr
}

// leafMessages flattens a validation error tree into "location: message" lines.
func leafMessages(verr *jschema.ValidationError, p *message.Printer) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + joinPath(verr.InstanceLocation)
		return []string{loc + ": " + verr.ErrorKind.LocalizedString(p)}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, leafMessages(cause, p)...)
	}
	return out
}

func joinPath(parts []string) string {
	return strings.Join(parts, "/")
}
