package openapi

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/jsonschema-go/jsonschema"

	"swaggerd/internal/domain"
)

// Param is one operation parameter the proxy must place on the upstream
// request.
type Param struct {
	Name     string
	In       string
	Required bool
}

// Operation is one invokable tool derived from an OpenAPI operation.
type Operation struct {
	Name        string
	Description string
	Method      string
	Path        string
	Params      []Param
	HasBody     bool
	InputSchema *jsonschema.Schema
}

func (o Operation) Info(enabled bool) domain.ToolInfo {
	return domain.ToolInfo{
		Name:        o.Name,
		Description: o.Description,
		Method:      o.Method,
		Path:        o.Path,
		Enabled:     enabled,
	}
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// DeriveOperations converts every operation of doc into a tool, ordered by
// path then method so the result is stable across imports.
func DeriveOperations(doc *openapi3.T) ([]Operation, error) {
	if doc.Paths == nil {
		return nil, nil
	}

	pathItems := doc.Paths.Map()
	paths := make([]string, 0, len(pathItems))
	for p := range pathItems {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var ops []Operation
	seen := make(map[string]struct{})
	for _, p := range paths {
		item := pathItems[p]
		if item == nil {
			continue
		}
		operations := item.Operations()
		methods := make([]string, 0, len(operations))
		for method := range operations {
			methods = append(methods, method)
		}
		sort.Strings(methods)

		for _, method := range methods {
			op := operations[method]
			if op == nil {
				continue
			}
			derived := deriveOperation(method, p, item, op)
			if _, dup := seen[derived.Name]; dup {
				return nil, domain.E(domain.CodeInvalidArgument, "derive tools",
					fmt.Sprintf("duplicate tool name %q", derived.Name), nil)
			}
			seen[derived.Name] = struct{}{}
			ops = append(ops, derived)
		}
	}
	return ops, nil
}

func deriveOperation(method, path string, item *openapi3.PathItem, op *openapi3.Operation) Operation {
	name := op.OperationID
	if name == "" {
		name = operationSlug(method, path)
	}
	description := op.Summary
	if description == "" {
		description = op.Description
	}

	params := collectParams(item.Parameters, op.Parameters)
	hasBody := op.RequestBody != nil && op.RequestBody.Value != nil

	return Operation{
		Name:        name,
		Description: description,
		Method:      method,
		Path:        path,
		Params:      params,
		HasBody:     hasBody,
		InputSchema: buildInputSchema(params, op),
	}
}

func operationSlug(method, path string) string {
	slug := slugCleaner.ReplaceAllString(strings.ToLower(path), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		slug = "root"
	}
	return strings.ToLower(method) + "_" + slug
}

func collectParams(groups ...openapi3.Parameters) []Param {
	var params []Param
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, ref := range group {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			key := p.In + "/" + p.Name
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			params = append(params, Param{
				Name:     p.Name,
				In:       p.In,
				Required: p.Required || p.In == openapi3.ParameterInPath,
			})
		}
	}
	return params
}

// buildInputSchema flattens path/query/header parameters and the request
// body into a single object schema, the shape tool callers see.
func buildInputSchema(params []Param, op *openapi3.Operation) *jsonschema.Schema {
	schema := &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}

	for _, ref := range op.Parameters {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		prop := schemaFromSpec(p.Schema)
		if prop.Description == "" {
			prop.Description = p.Description
		}
		schema.Properties[p.Name] = prop
	}
	for _, param := range params {
		if _, ok := schema.Properties[param.Name]; !ok {
			schema.Properties[param.Name] = &jsonschema.Schema{Type: "string"}
		}
		if param.Required {
			schema.Required = append(schema.Required, param.Name)
		}
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if media := op.RequestBody.Value.Content.Get("application/json"); media != nil {
			body := schemaFromSpec(media.Schema)
			if body.Type == "object" && len(body.Properties) > 0 {
				for name, prop := range body.Properties {
					if _, taken := schema.Properties[name]; !taken {
						schema.Properties[name] = prop
					}
				}
				schema.Required = append(schema.Required, body.Required...)
			} else {
				schema.Properties["body"] = body
			}
		} else {
			schema.Properties["body"] = &jsonschema.Schema{}
		}
	}

	sort.Strings(schema.Required)
	return schema
}

// schemaFromSpec converts an OpenAPI schema into a JSON schema by round-
// tripping through JSON. Anything that does not survive the trip degrades
// to an unconstrained schema rather than failing the import.
func schemaFromSpec(ref *openapi3.SchemaRef) *jsonschema.Schema {
	if ref == nil || ref.Value == nil {
		return &jsonschema.Schema{}
	}
	raw, err := ref.Value.MarshalJSON()
	if err != nil {
		return &jsonschema.Schema{}
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return &jsonschema.Schema{}
	}
	return &schema
}
