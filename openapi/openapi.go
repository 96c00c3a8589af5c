package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/crmauth/apperror"
	"gopkg.in/yaml.v3"
)

// Security scheme names referenced by documented routes.
const (
	BearerScheme  = "bearerAuth"
	APIKeyScheme  = "apiKeyAuth"
	RefreshScheme = "refreshCookie"
)

// OpenAPI accumulates the document for the routes registered with it. Struct
// types become named component schemas the first time they are seen.
type OpenAPI struct {
	spec               *openapi3.T
	mu                 sync.RWMutex
	schemaRegistry     map[string]string
	schemaNameRegistry map[string]string
}

func New(title, version string) *OpenAPI {
	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   title,
			Version: version,
		},
		Paths:      openapi3.NewPaths(),
		Components: &openapi3.Components{},
	}

	return &OpenAPI{
		spec:               spec,
		schemaRegistry:     make(map[string]string),
		schemaNameRegistry: make(map[string]string),
	}
}

func (o *OpenAPI) Description(desc string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spec.Info.Description = desc
	return o
}

func (o *OpenAPI) Server(url, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spec.Servers = append(o.spec.Servers, &openapi3.Server{
		URL:         url,
		Description: description,
	})
	return o
}

func (o *OpenAPI) Tag(name, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spec.Tags = append(o.spec.Tags, &openapi3.Tag{
		Name:        name,
		Description: description,
	})
	return o
}

func (o *OpenAPI) BearerAuth(name, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureSecuritySchemes()
	o.spec.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  description,
		},
	}
	return o
}

func (o *OpenAPI) APIKeyAuth(name, paramName, location, description string) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensureSecuritySchemes()
	o.spec.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			Name:        paramName,
			In:          location,
			Description: description,
		},
	}
	return o
}

func (o *OpenAPI) CookieAuth(name, cookieName, description string) *OpenAPI {
	return o.APIKeyAuth(name, cookieName, "cookie", description)
}

func (o *OpenAPI) ensureSecuritySchemes() {
	if o.spec.Components.SecuritySchemes == nil {
		o.spec.Components.SecuritySchemes = make(openapi3.SecuritySchemes)
	}
}

// AddSchema registers example's type under name so later references use it.
func (o *OpenAPI) AddSchema(name string, example any) *OpenAPI {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.spec.Components.Schemas == nil {
		o.spec.Components.Schemas = make(openapi3.Schemas)
	}

	t := reflect.TypeOf(example)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	visited := make(map[string]bool)
	var schema *openapi3.Schema
	if t.Kind() == reflect.Struct {
		schema = o.buildStructSchema(t, visited)
		o.schemaRegistry[getTypeKey(t)] = name
		o.schemaNameRegistry[name] = getTypeKey(t)
	} else {
		schema = o.generateSchemaFromType(t, visited, true).Value
	}

	o.spec.Components.Schemas[name] = &openapi3.SchemaRef{Value: schema}
	return o
}

func (o *OpenAPI) Spec() *openapi3.T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec
}

// Validate checks the assembled document against the OpenAPI 3 schema rules.
func (o *OpenAPI) Validate(ctx context.Context) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.spec.Validate(ctx)
}

func (o *OpenAPI) JSON() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return json.MarshalIndent(o.spec, "", "  ")
}

func (o *OpenAPI) YAML() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	intermediate, err := o.spec.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (o *OpenAPI) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.JSON()
		if err != nil {
			return apperror.Internal(err)
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (o *OpenAPI) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := o.YAML()
		if err != nil {
			return apperror.Internal(err)
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

// Mount serves the document as openapi.json and openapi.yaml below path.
func (o *OpenAPI) Mount(g *echo.Group, path string) {
	path = strings.TrimRight(path, "/")
	g.GET(path+"/openapi.json", o.JSONHandler())
	g.GET(path+"/openapi.yaml", o.YAMLHandler())
}

// Document starts describing the operation at method and path. path uses echo
// syntax and is stored relative to the first server URL.
func (o *OpenAPI) Document(method, path string) *RouteBuilder {
	rb := &RouteBuilder{
		openapi:   o,
		method:    method,
		path:      path,
		operation: &openapi3.Operation{Responses: openapi3.NewResponses()},
	}
	rb.autoExtractPathParams()
	return rb
}

func (o *OpenAPI) addOperation(method, path string, op *openapi3.Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()

	openAPIPath := echoPathToOpenAPI(path)

	pathItem := o.spec.Paths.Find(openAPIPath)
	if pathItem == nil {
		pathItem = &openapi3.PathItem{}
		o.spec.Paths.Set(openAPIPath, pathItem)
	}
	pathItem.SetOperation(strings.ToUpper(method), op)
}

func echoPathToOpenAPI(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if strings.HasPrefix(part, ":") {
			parts[i] = "{" + strings.TrimPrefix(part, ":") + "}"
		}
	}
	return strings.Join(parts, "/")
}

func (o *OpenAPI) generateSchema(example any) *openapi3.SchemaRef {
	o.mu.Lock()
	defer o.mu.Unlock()

	if example == nil {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}

	visited := make(map[string]bool)
	return o.generateSchemaFromType(reflect.TypeOf(example), visited, false)
}

func getTypeKey(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

var jsonMarshalerType = reflect.TypeFor[json.Marshaler]()

func (o *OpenAPI) generateSchemaFromType(t reflect.Type, visited map[string]bool, inline bool) *openapi3.SchemaRef {
	if t.Kind() == reflect.Pointer {
		innerRef := o.generateSchemaFromType(t.Elem(), visited, inline)

		if innerRef.Ref != "" {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{
					AllOf:    openapi3.SchemaRefs{innerRef},
					Nullable: true,
				},
			}
		}

		if innerRef.Value != nil {
			innerRef.Value.Nullable = true
		}
		return innerRef
	}

	// Types with their own JSON encoding (custom field values) have no static shape.
	if t.Kind() == reflect.Struct && t.Implements(jsonMarshalerType) && !(t.PkgPath() == "time" && t.Name() == "Time") {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}

	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: openapi3.NewStringSchema()}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema()}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: openapi3.NewIntegerSchema().WithMin(0)}
	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: openapi3.NewFloat64Schema()}
	case reflect.Bool:
		return &openapi3.SchemaRef{Value: openapi3.NewBoolSchema()}
	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{openapi3.TypeArray},
				Items: o.generateSchemaFromType(t.Elem(), visited, false),
			},
		}
	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type: &openapi3.Types{openapi3.TypeObject},
				AdditionalProperties: openapi3.AdditionalProperties{
					Schema: o.generateSchemaFromType(t.Elem(), visited, false),
				},
			},
		}
	case reflect.Struct:
		return o.generateStructSchema(t, visited, inline)
	default:
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
}

func (o *OpenAPI) generateStructSchema(t reflect.Type, visited map[string]bool, inline bool) *openapi3.SchemaRef {
	if t.PkgPath() == "time" && t.Name() == "Time" {
		return &openapi3.SchemaRef{Value: openapi3.NewDateTimeSchema()}
	}

	if inline || t.Name() == "" || t.PkgPath() == "" {
		return &openapi3.SchemaRef{Value: o.buildStructSchema(t, visited)}
	}

	typeKey := getTypeKey(t)
	if registeredName, exists := o.schemaRegistry[typeKey]; exists {
		return openapi3.NewSchemaRef("#/components/schemas/"+registeredName, nil)
	}

	schemaName := t.Name()
	if existing, taken := o.schemaNameRegistry[schemaName]; taken && existing != typeKey {
		for suffix := 2; ; suffix++ {
			schemaName = t.Name() + strconv.Itoa(suffix)
			if _, taken := o.schemaNameRegistry[schemaName]; !taken {
				break
			}
		}
	}

	o.schemaRegistry[typeKey] = schemaName
	o.schemaNameRegistry[schemaName] = typeKey

	schema := o.buildStructSchema(t, visited)
	if o.spec.Components.Schemas == nil {
		o.spec.Components.Schemas = make(openapi3.Schemas)
	}
	o.spec.Components.Schemas[schemaName] = &openapi3.SchemaRef{Value: schema}

	return openapi3.NewSchemaRef("#/components/schemas/"+schemaName, nil)
}

func (o *OpenAPI) buildStructSchema(t reflect.Type, visited map[string]bool) *openapi3.Schema {
	typeKey := getTypeKey(t)
	if visited[typeKey] {
		return openapi3.NewObjectSchema()
	}
	visited[typeKey] = true
	defer delete(visited, typeKey)

	schema := &openapi3.Schema{
		Type:       &openapi3.Types{openapi3.TypeObject},
		Properties: make(openapi3.Schemas),
	}

	var required []string

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		if field.Anonymous && jsonTag == "" {
			fieldType := field.Type
			if fieldType.Kind() == reflect.Pointer {
				fieldType = fieldType.Elem()
			}
			if fieldType.Kind() == reflect.Struct {
				embedded := o.buildStructSchema(fieldType, visited)
				for propName, propSchema := range embedded.Properties {
					schema.Properties[propName] = propSchema
				}
				required = append(required, embedded.Required...)
				continue
			}
		}

		name := field.Name
		tagParts := strings.Split(jsonTag, ",")
		if tagParts[0] != "" {
			name = tagParts[0]
		}

		optional := false
		for _, part := range tagParts[1:] {
			if part == "omitempty" {
				optional = true
			}
		}

		ref := o.generateSchemaFromType(field.Type, visited, field.Tag.Get("openapi") == "inline")
		ref = describe(ref, field.Tag.Get("doc"), field.Tag.Get("example"))

		schema.Properties[name] = ref
		if !optional {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema.Required = required
	}

	return schema
}

// describe attaches doc and example tags. References cannot carry siblings, so
// they are wrapped in allOf first.
func describe(ref *openapi3.SchemaRef, doc, example string) *openapi3.SchemaRef {
	if doc == "" && example == "" {
		return ref
	}
	if ref.Ref != "" {
		ref = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{ref}}}
	}
	if doc != "" {
		ref.Value.Description = doc
	}
	if example != "" {
		ref.Value.Example = example
	}
	return ref
}
