package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// catalogSchema constrains provider catalog files. Unknown keys are rejected so
// a typo in a pattern key fails loudly instead of producing a provider that
// never matches.
const catalogSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "include_builtin": {"type": "boolean"},
    "providers": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["id", "name_pattern", "phone_pattern"],
        "properties": {
          "id":              {"type": "string", "pattern": "^[a-z0-9][a-z0-9_-]*$"},
          "name":            {"type": "string"},
          "name_pattern":    {"type": "string", "minLength": 1},
          "phone_pattern":   {"type": "string", "minLength": 1},
          "block_separator": {"type": "string"}
        }
      }
    }
  }
}`

// CatalogFile is the on-disk provider catalog.
//
//	include_builtin: true
//	providers:
//	  - id: foxter
//	    name: Foxter
//	    name_pattern: '(?im)Locador:[ \t]*(.*?)[ \t]*$'
//	    phone_pattern: '(?i)Fone:\s*([\d() -]{8,})'
type CatalogFile struct {
	IncludeBuiltin *bool        `yaml:"include_builtin"`
	Providers      []Definition `yaml:"providers"`
}

var compiledCatalogSchema = mustCompileSchema(catalogSchema)

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.json", bytes.NewReader([]byte(src))); err != nil {
		panic(fmt.Sprintf("add catalog schema: %v", err))
	}
	schema, err := compiler.Compile("catalog.json")
	if err != nil {
		panic(fmt.Sprintf("compile catalog schema: %v", err))
	}
	return schema
}

// ParseCatalog validates and decodes a YAML catalog document.
func ParseCatalog(data []byte) (*CatalogFile, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if raw == nil {
		return &CatalogFile{}, nil
	}

	// Round-trip through JSON so the validator sees plain JSON types.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalizing catalog: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("normalizing catalog: %w", err)
	}
	if err := compiledCatalogSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("catalog does not match schema: %w", err)
	}

	var cat CatalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return &cat, nil
}

// LoadCatalogFile builds the process registry: the built-in catalog (unless
// the file sets include_builtin: false) followed by the file's providers in
// file order. An empty path yields the built-in catalog.
func LoadCatalogFile(path string) (*Registry, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var defs []Definition
	if cat.IncludeBuiltin == nil || *cat.IncludeBuiltin {
		defs = append(defs, BuiltinDefinitions()...)
	}
	defs = append(defs, cat.Providers...)
	if len(defs) == 0 {
		return nil, fmt.Errorf("%s: catalog defines no providers", path)
	}

	reg, err := Load(defs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
